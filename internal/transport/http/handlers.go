package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/olegsharov/converse-server/internal/auth"
	"github.com/olegsharov/converse-server/internal/proto"
	"github.com/olegsharov/converse-server/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// API carries the dependencies of the REST handlers.
type API struct {
	auth  *auth.Service
	store store.Store
	log   *zerolog.Logger
}

// NewAPI builds the REST handler set.
func NewAPI(authService *auth.Service, st store.Store, logger *zerolog.Logger) *API {
	return &API{auth: authService, store: st, log: logger}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type identityResponse struct {
	ID       int64     `json:"id"`
	Username string    `json:"username"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

type conversationResponse struct {
	ID            int64     `json:"id"`
	Participants  []int64   `json:"participants"`
	LastMessageID *int64    `json:"last_message_id,omitempty"`
	UnreadCount   int       `json:"unread_count"`
	CreatedAt     time.Time `json:"created_at"`
}

type roomResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	OwnerID   int64     `json:"owner_id"`
	Private   bool      `json:"private"`
	Members   []int64   `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *API) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "username and password are required"})
		return
	}

	token, err := a.auth.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrIdentityExists):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "username already taken"})
		case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			a.log.Error().Err(err).Msg("register failed")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		}
		return
	}

	c.JSON(http.StatusCreated, tokenResponse{Token: token})
}

func (a *API) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "username and password are required"})
		return
	}

	token, err := a.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		a.log.Error().Err(err).Msg("login failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	c.JSON(http.StatusOK, tokenResponse{Token: token})
}

func (a *API) searchIdentities(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "q is required"})
		return
	}

	identities, err := a.store.SearchIdentities(c.Request.Context(), query)
	if err != nil {
		a.log.Error().Err(err).Msg("search identities failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	out := make([]identityResponse, 0, len(identities))
	for _, ident := range identities {
		out = append(out, identityResponse{
			ID:       ident.ID,
			Username: ident.Username,
			Status:   string(ident.Status),
			LastSeen: ident.LastSeen,
		})
	}
	c.JSON(http.StatusOK, out)
}

type createRoomRequest struct {
	Name    string `json:"name" binding:"required"`
	Private bool   `json:"private"`
}

func (a *API) createRoom(c *gin.Context) {
	identityID, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "name is required"})
		return
	}

	room, err := a.store.CreateRoom(c.Request.Context(), req.Name, identityID, req.Private)
	if err != nil {
		a.log.Error().Err(err).Msg("create room failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	c.JSON(http.StatusCreated, roomToResponse(room))
}

func (a *API) listRooms(c *gin.Context) {
	identityID, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	rooms, err := a.store.ListRooms(c.Request.Context(), identityID)
	if err != nil {
		a.log.Error().Err(err).Msg("list rooms failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	out := make([]roomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, roomToResponse(room))
	}
	c.JSON(http.StatusOK, out)
}

type addMemberRequest struct {
	IdentityID int64 `json:"identity_id" binding:"required"`
}

func (a *API) addRoomMember(c *gin.Context) {
	identityID, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	roomID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room id"})
		return
	}

	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "identity_id is required"})
		return
	}

	room, err := a.store.GetRoomByID(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		a.log.Error().Err(err).Msg("get room failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	if room.OwnerID != identityID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only the owner can add members"})
		return
	}

	if _, err := a.store.GetIdentityByID(c.Request.Context(), req.IdentityID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "identity not found"})
			return
		}
		a.log.Error().Err(err).Msg("get identity failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	if err := a.store.AddMember(c.Request.Context(), roomID, req.IdentityID); err != nil {
		a.log.Error().Err(err).Msg("add room member failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	c.Status(http.StatusNoContent)
}

type createConversationRequest struct {
	Participants []int64 `json:"participants" binding:"required"`
}

func (a *API) createConversation(c *gin.Context) {
	identityID, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "participants are required"})
		return
	}

	participants := req.Participants
	found := false
	for _, p := range participants {
		if p == identityID {
			found = true
			break
		}
	}
	if !found {
		participants = append(participants, identityID)
	}
	if len(participants) < 2 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "a conversation needs at least two participants"})
		return
	}

	for _, p := range participants {
		if p == identityID {
			continue
		}
		if _, err := a.store.GetIdentityByID(c.Request.Context(), p); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, ErrorResponse{Error: "participant not found"})
				return
			}
			a.log.Error().Err(err).Msg("get identity failed")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
			return
		}
	}

	conv, err := a.store.CreateConversation(c.Request.Context(), participants)
	if err != nil {
		a.log.Error().Err(err).Msg("create conversation failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	c.JSON(http.StatusCreated, conversationToResponse(conv, identityID))
}

func (a *API) listConversations(c *gin.Context) {
	identityID, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	convs, err := a.store.ListConversations(c.Request.Context(), identityID)
	if err != nil {
		a.log.Error().Err(err).Msg("list conversations failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	out := make([]conversationResponse, 0, len(convs))
	for _, conv := range convs {
		out = append(out, conversationToResponse(conv, identityID))
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) listConversationMessages(c *gin.Context) {
	a.listMessages(c, store.ContainerConversation)
}

func (a *API) listRoomMessages(c *gin.Context) {
	a.listMessages(c, store.ContainerRoom)
}

// listMessages serves paginated history for a container the caller belongs to.
func (a *API) listMessages(c *gin.Context, kind store.ContainerKind) {
	identityID, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	containerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
		return
	}

	allowed, err := a.containerAccess(c, kind, containerID, identityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
			return
		}
		a.log.Error().Err(err).Msg("container access check failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		if parsed > maxHistoryLimit {
			parsed = maxHistoryLimit
		}
		limit = parsed
	}

	var beforeID *int64
	if raw := c.Query("before"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before"})
			return
		}
		beforeID = &parsed
	}

	messages, err := a.store.ListMessages(c.Request.Context(), kind, containerID, limit, beforeID)
	if err != nil {
		a.log.Error().Err(err).Msg("list messages failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	out := make([]proto.Message, 0, len(messages))
	for _, msg := range messages {
		out = append(out, messageToProto(msg))
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) containerAccess(c *gin.Context, kind store.ContainerKind, containerID, identityID int64) (bool, error) {
	if kind == store.ContainerRoom {
		room, err := a.store.GetRoomByID(c.Request.Context(), containerID)
		if err != nil {
			return false, err
		}
		return !room.Private || room.HasMember(identityID), nil
	}

	conv, err := a.store.GetConversationByID(c.Request.Context(), containerID)
	if err != nil {
		return false, err
	}
	return conv.HasParticipant(identityID), nil
}

func roomToResponse(room *store.Room) roomResponse {
	return roomResponse{
		ID:        room.ID,
		Name:      room.Name,
		OwnerID:   room.OwnerID,
		Private:   room.Private,
		Members:   room.Members,
		CreatedAt: room.CreatedAt,
	}
}

func conversationToResponse(conv *store.Conversation, identityID int64) conversationResponse {
	return conversationResponse{
		ID:            conv.ID,
		Participants:  conv.Participants,
		LastMessageID: conv.LastMessageID,
		UnreadCount:   conv.UnreadCounts[identityID],
		CreatedAt:     conv.CreatedAt,
	}
}
