package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"commhub/internal/auth"
	"commhub/internal/channel"
	"commhub/internal/operator"
	"commhub/internal/repo"
	"commhub/internal/services"
	"commhub/internal/testutil"
	"commhub/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	err error
}

func (s *stubAdapter) Platform() models.Platform { return models.PlatformTelegram }

func (s *stubAdapter) Deliver(_ context.Context, _ *channel.Outbound) (*channel.Delivery, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &channel.Delivery{ExternalID: "tg-" + uuid.NewString()}, nil
}

type commsFixture struct {
	e     *echo.Echo
	store *repo.ConversationStore
	conv  *models.Conversation
}

func newCommsFixture(t *testing.T, adapter *stubAdapter, p *auth.Principal) *commsFixture {
	t.Helper()
	gdb := testutil.NewDB(t)
	store := repo.NewConversationStore(gdb)
	backend, err := services.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	media := services.NewMediaStore(backend, store)
	sender := channel.NewSender(store, channel.NewRegistry(adapter), nil)
	ops := operator.NewService(store, sender, media, repo.NewClientRepository(gdb), nil)

	conv, _, err := store.UpsertConversation(context.Background(), repo.UpsertConversationInput{
		Platform: models.PlatformTelegram, ExternalID: "100200", Subject: "Jan Nowak",
	})
	require.NoError(t, err)

	h := NewCommunicationsHandler(ops)
	e := newTestEcho()
	g := e.Group("/communications", withPrincipal(p))
	g.GET("/inbox", h.Inbox)
	g.GET("/conversations/:id", h.GetConversation)
	g.POST("/conversations/:id/messages", h.SendMessage)
	g.POST("/conversations/:id/archive", h.Archive)
	g.POST("/conversations/:id/unarchive", h.Unarchive)
	g.POST("/conversations/:id/assign-manager", h.AssignManager)
	g.POST("/conversations/:id/create-client", h.CreateClient)
	g.DELETE("/messages/:id", h.DeleteMessage)
	return &commsFixture{e: e, store: store, conv: conv}
}

func manager() *auth.Principal {
	id := uuid.Must(uuid.NewV7())
	return &auth.Principal{UserID: &id, DisplayName: "Anna Kowalska", Role: "manager"}
}

func TestSendMessage_AssignsAndReturnsCreated(t *testing.T) {
	f := newCommsFixture(t, &stubAdapter{}, manager())

	rec := doJSON(f.e, http.MethodPost, "/communications/conversations/"+f.conv.ID.String()+"/messages", `{"content": "Tłumaczenie jest gotowe"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var msg models.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, models.StatusSent, msg.Status)
	assert.Equal(t, models.DirectionOutbound, msg.Direction)
	assert.Equal(t, "Anna Kowalska", msg.Metadata["author_name"])

	conv, err := f.store.GetConversation(context.Background(), f.conv.ID)
	require.NoError(t, err)
	require.NotNil(t, conv.AssignedManagerID)
	assert.Equal(t, "Anna Kowalska", conv.AssignedManagerName)
}

func TestSendMessage_ProviderFailureReturnsFailedMessage(t *testing.T) {
	f := newCommsFixture(t, &stubAdapter{err: channel.Permanent(models.PlatformTelegram, "bot was blocked by the user")}, manager())

	rec := doJSON(f.e, http.MethodPost, "/communications/conversations/"+f.conv.ID.String()+"/messages", `{"content": "Halo?"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body SendFailedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "provider_permanent", body.Kind)
	require.NotNil(t, body.Message)
	assert.Equal(t, models.StatusFailed, body.Message.Status)
	assert.Contains(t, body.Message.Error, "blocked")
}

func TestSendMessage_Validation(t *testing.T) {
	f := newCommsFixture(t, &stubAdapter{}, manager())
	base := "/communications/conversations/" + f.conv.ID.String() + "/messages"

	assert.Equal(t, http.StatusBadRequest, doJSON(f.e, http.MethodPost, base, `{"content": "   "}`).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(f.e, http.MethodPost, base, `{"content": 5}`).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(f.e, http.MethodPost, "/communications/conversations/nope/messages", `{"content": "x"}`).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(f.e, http.MethodPost, "/communications/conversations/"+uuid.NewString()+"/messages", `{"content": "x"}`).Code)
}

func TestInbox_FiltersArchived(t *testing.T) {
	f := newCommsFixture(t, &stubAdapter{}, manager())

	rec := doJSON(f.e, http.MethodPost, "/communications/conversations/"+f.conv.ID.String()+"/archive", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	var page models.PaginationResult[models.InboxItem]
	rec = doJSON(f.e, http.MethodGet, "/communications/inbox?filter=archived", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, int64(1), page.Total)

	page = models.PaginationResult[models.InboxItem]{}
	rec = doJSON(f.e, http.MethodGet, "/communications/inbox", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, int64(0), page.Total)

	assert.Equal(t, http.StatusBadRequest, doJSON(f.e, http.MethodGet, "/communications/inbox?filter=starred", "").Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(f.e, http.MethodGet, "/communications/inbox?platform=viber", "").Code)
}

func TestAssignManager_RejectsAIPrincipal(t *testing.T) {
	f := newCommsFixture(t, &stubAdapter{}, auth.AIPrincipal())

	rec := doJSON(f.e, http.MethodPost, "/communications/conversations/"+f.conv.ID.String()+"/assign-manager", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Kind)
}

func TestCreateClient_FromConversation(t *testing.T) {
	f := newCommsFixture(t, &stubAdapter{}, manager())
	target := "/communications/conversations/" + f.conv.ID.String() + "/create-client"

	rec := doJSON(f.e, http.MethodPost, target, `{"email": "jan@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var client models.Client
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &client))
	assert.Equal(t, "Jan Nowak", client.Name)

	rec = doJSON(f.e, http.MethodPost, target, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteMessage_Unknown(t *testing.T) {
	f := newCommsFixture(t, &stubAdapter{}, manager())
	rec := doJSON(f.e, http.MethodDelete, "/communications/messages/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
