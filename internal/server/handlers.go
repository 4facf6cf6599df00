package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/ReilBleem13/ChatRelay/internal/domain"
	"github.com/ReilBleem13/ChatRelay/internal/logger"
	"github.com/ReilBleem13/ChatRelay/internal/service"
	"github.com/gorilla/websocket"
)

type Handler struct {
	chatSrv     service.ChatServiceIn
	groupSrv    service.GroupServiceIn
	realtimeSrv service.RealtimeServiceIn
	upgrader    *websocket.Upgrader
	sendBuffer  int
	log         *logger.Logger
}

func NewHandler(
	chatSrv service.ChatServiceIn,
	groupSrv service.GroupServiceIn,
	realtimeSrv service.RealtimeServiceIn,
	sendBuffer int,
	log *logger.Logger,
) *Handler {
	return &Handler{
		chatSrv:     chatSrv,
		groupSrv:    groupSrv,
		realtimeSrv: realtimeSrv,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferPool: &sync.Pool{},
		},
		sendBuffer: sendBuffer,
		log:        log.With("component", "http"),
	}
}

func pathInt(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(r.PathValue(name))
	if err != nil || v <= 0 {
		return 0, domain.ErrInvalidRequest.WithMessage("invalid " + name)
	}
	return v, nil
}

func queryInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, domain.ErrInvalidRequest.WithMessage("invalid " + name)
	}
	return &v, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.ErrInvalidRequest.WithMessage("malformed JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	groupID, err := pathInt(r, "group_id")
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	isMember, err := h.groupSrv.IsMember(r.Context(), groupID, userID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	if !isMember {
		writeError(w, domain.ErrForbidden.WithMessage("user is not a member of the group"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	client := service.NewClient(userID, GetUsernameFromContext(r.Context()), conn, h.sendBuffer)
	h.realtimeSrv.HandleConn(r.Context(), client, groupID)
}

func (h *Handler) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	var in service.CreateGroupDTO
	if err := decodeJSON(r, &in); err != nil {
		handleError(w, h.log, err)
		return
	}
	in.CreatorID = userID
	in.CreatorName = GetUsernameFromContext(r.Context())

	group, err := h.groupSrv.CreateGroup(r.Context(), &in)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *Handler) handleGetUserGroups(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	groups, err := h.groupSrv.GetUserGroups(r.Context(), userID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	if groups == nil {
		groups = []domain.UserGroup{}
	}
	writeJSON(w, http.StatusOK, &GroupsResponse{Groups: groups})
}

func (h *Handler) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := h.userAndGroup(r)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	group, err := h.groupSrv.GetGroup(r.Context(), groupID, userID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *Handler) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := h.userAndGroup(r)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	if err := h.groupSrv.DeleteGroup(r.Context(), groupID, userID); err != nil {
		handleError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := h.userAndGroup(r)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	var in service.AddMemberDTO
	if err := decodeJSON(r, &in); err != nil {
		handleError(w, h.log, err)
		return
	}
	in.GroupID = groupID
	in.ActorID = userID

	group, err := h.groupSrv.AddMember(r.Context(), &in)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *Handler) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	actorID, groupID, err := h.userAndGroup(r)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	memberID, err := pathInt(r, "user_id")
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	if err := h.groupSrv.RemoveMember(r.Context(), groupID, memberID, actorID); err != nil {
		handleError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePromoteMember(w http.ResponseWriter, r *http.Request) {
	actorID, groupID, err := h.userAndGroup(r)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	memberID, err := pathInt(r, "user_id")
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	group, err := h.groupSrv.PromoteMember(r.Context(), groupID, memberID, actorID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *Handler) handleDemoteMember(w http.ResponseWriter, r *http.Request) {
	actorID, groupID, err := h.userAndGroup(r)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	memberID, err := pathInt(r, "user_id")
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	group, err := h.groupSrv.DemoteMember(r.Context(), groupID, memberID, actorID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *Handler) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	actorID, groupID, err := h.userAndGroup(r)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	var in TransferOwnershipJSON
	if err := decodeJSON(r, &in); err != nil {
		handleError(w, h.log, err)
		return
	}

	group, err := h.groupSrv.TransferOwnership(r.Context(), groupID, actorID, in.UserID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := h.userAndGroup(r)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	if err := h.groupSrv.MarkRead(r.Context(), groupID, userID); err != nil {
		handleError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetMuted(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := h.userAndGroup(r)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	var in MuteJSON
	if err := decodeJSON(r, &in); err != nil {
		handleError(w, h.log, err)
		return
	}

	if err := h.groupSrv.SetMuted(r.Context(), groupID, userID, in.Muted); err != nil {
		handleError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetOnlineUsers(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := h.userAndGroup(r)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	ids, err := h.groupSrv.GetOnlineUsers(r.Context(), groupID, userID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	if ids == nil {
		ids = []int{}
	}
	writeJSON(w, http.StatusOK, &OnlineResponse{GroupID: groupID, UserIDs: ids})
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := h.userAndGroup(r)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	var in service.SendMessageDTO
	if err := decodeJSON(r, &in); err != nil {
		handleError(w, h.log, err)
		return
	}
	in.GroupID = groupID
	in.SenderID = userID

	res, err := h.chatSrv.SendMessage(r.Context(), &in)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleGetGroupMessages(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := h.userAndGroup(r)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	before, err := queryInt(r, "before")
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	in := &service.HistoryDTO{GroupID: groupID, UserID: userID, Before: before}
	if limit != nil {
		in.Limit = *limit
	}

	messages, err := h.chatSrv.GetGroupMessages(r.Context(), in)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, &MessagesResponse{Messages: messages})
}

func (h *Handler) handleSearchMessages(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := h.userAndGroup(r)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	in := &service.SearchDTO{GroupID: groupID, UserID: userID, Query: r.URL.Query().Get("q")}
	if limit != nil {
		in.Limit = *limit
	}

	messages, err := h.chatSrv.SearchMessages(r.Context(), in)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, &MessagesResponse{Messages: messages})
}

func (h *Handler) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	userID, messageID, err := h.userAndMessage(r)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	msg, err := h.chatSrv.GetMessage(r.Context(), messageID, userID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	userID, messageID, err := h.userAndMessage(r)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	var in service.EditMessageDTO
	if err := decodeJSON(r, &in); err != nil {
		handleError(w, h.log, err)
		return
	}
	in.MessageID = messageID
	in.EditorID = userID

	msg, err := h.chatSrv.EditMessage(r.Context(), &in)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, messageID, err := h.userAndMessage(r)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	msg, err := h.chatSrv.DeleteMessage(r.Context(), messageID, userID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) userAndGroup(r *http.Request) (int, int, error) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		return 0, 0, err
	}
	groupID, err := pathInt(r, "group_id")
	if err != nil {
		return 0, 0, err
	}
	return userID, groupID, nil
}

func (h *Handler) userAndMessage(r *http.Request) (int, int, error) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		return 0, 0, err
	}
	messageID, err := pathInt(r, "message_id")
	if err != nil {
		return 0, 0, err
	}
	return userID, messageID, nil
}
