// ABOUTME: Tests for the SQLite store
// ABOUTME: Covers conversations, message ordering/pagination, knowledge entries and staff lookup

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestBotConfig(t *testing.T, s *SQLiteStore) *BotConfig {
	t.Helper()
	cfg := &BotConfig{
		ID:                 uuid.New().String(),
		Name:               "support-bot",
		Model:              "gpt-4o-mini",
		Temperature:        0.7,
		SystemInstructions: "You are a helpful support assistant.",
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	require.NoError(t, s.CreateBotConfig(context.Background(), cfg))
	return cfg
}

func createTestConversation(t *testing.T, s *SQLiteStore, botConfigID string) *Conversation {
	t.Helper()
	conv := &Conversation{
		ID:          uuid.New().String(),
		CustomerID:  "customer-1",
		BotConfigID: botConfigID,
		Status:      StatusAutomated,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, s.CreateConversation(context.Background(), conv))
	return conv
}

func TestConversation_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cfg := createTestBotConfig(t, s)

	ip := "203.0.113.9"
	conv := &Conversation{
		ID:          uuid.New().String(),
		CustomerID:  "c1",
		BotConfigID: cfg.ID,
		Status:      StatusAutomated,
		CustomerIP:  &ip,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, s.CreateConversation(ctx, conv))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "c1", got.CustomerID)
	assert.Equal(t, StatusAutomated, got.Status)
	assert.Nil(t, got.AssignedUserID)
	require.NotNil(t, got.CustomerIP)
	assert.Equal(t, ip, *got.CustomerIP)
	assert.Equal(t, 0, got.MessageCount)
	assert.Nil(t, got.LastMessageAt)
}

func TestConversation_GetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversation_SetStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cfg := createTestBotConfig(t, s)
	conv := createTestConversation(t, s, cfg.ID)

	agentID := "agent-1"
	require.NoError(t, s.SetConversationStatus(ctx, conv.ID, StatusHuman, &agentID))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusHuman, got.Status)
	require.NotNil(t, got.AssignedUserID)
	assert.Equal(t, agentID, *got.AssignedUserID)

	// Status-only update leaves assignee untouched
	require.NoError(t, s.SetConversationStatus(ctx, conv.ID, StatusPending, nil))
	got, err = s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	require.NotNil(t, got.AssignedUserID)

	err = s.SetConversationStatus(ctx, "missing", StatusHuman, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversation_BumpActivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cfg := createTestBotConfig(t, s)
	conv := createTestConversation(t, s, cfg.ID)

	now := time.Now()
	require.NoError(t, s.BumpConversationActivity(ctx, conv.ID, now))
	require.NoError(t, s.BumpConversationActivity(ctx, conv.ID, now.Add(time.Second)))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount)
	require.NotNil(t, got.LastMessageAt)
	assert.WithinDuration(t, now.Add(time.Second), *got.LastMessageAt, time.Millisecond)
}

func TestConversation_FindActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cfg := createTestBotConfig(t, s)

	_, err := s.FindActiveConversation(ctx, "c1", cfg.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	old := &Conversation{
		ID:          uuid.New().String(),
		CustomerID:  "c1",
		BotConfigID: cfg.ID,
		Status:      StatusAutomated,
		CreatedAt:   time.Now().Add(-time.Hour),
		UpdatedAt:   time.Now().Add(-time.Hour),
	}
	require.NoError(t, s.CreateConversation(ctx, old))

	recent := &Conversation{
		ID:          uuid.New().String(),
		CustomerID:  "c1",
		BotConfigID: cfg.ID,
		Status:      StatusHuman,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, s.CreateConversation(ctx, recent))

	// Pending conversations are never reused
	pending := &Conversation{
		ID:          uuid.New().String(),
		CustomerID:  "c1",
		BotConfigID: cfg.ID,
		Status:      StatusPending,
		CreatedAt:   time.Now().Add(time.Minute),
		UpdatedAt:   time.Now().Add(time.Minute),
	}
	require.NoError(t, s.CreateConversation(ctx, pending))

	got, err := s.FindActiveConversation(ctx, "c1", cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, recent.ID, got.ID)
}

func TestMessages_OrderingAndPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cfg := createTestBotConfig(t, s)
	conv := createTestConversation(t, s, cfg.ID)

	base := time.Now()
	var ids []string
	for i := 0; i < 5; i++ {
		msg := &Message{
			ID:             uuid.New().String(),
			ConversationID: conv.ID,
			Text:           fmt.Sprintf("message %d", i),
			Role:           RoleCustomer,
			CreatedAt:      base.Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, s.SaveMessage(ctx, msg))
		ids = append(ids, msg.ID)
	}

	msgs, total, err := s.ListMessages(ctx, conv.ID, MessageQuery{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, msgs, 3)
	assert.Equal(t, "message 0", msgs[0].Text)
	assert.Equal(t, "message 2", msgs[2].Text)

	// After cursor resumes past the cursor message
	msgs, _, err = s.ListMessages(ctx, conv.ID, MessageQuery{AfterID: ids[2]})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "message 3", msgs[0].Text)
	assert.Equal(t, "message 4", msgs[1].Text)

	// Before cursor stops short of the cursor message
	msgs, _, err = s.ListMessages(ctx, conv.ID, MessageQuery{BeforeID: ids[2]})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "message 0", msgs[0].Text)
	assert.Equal(t, "message 1", msgs[1].Text)
}

func TestMessages_RecentReturnsChronological(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cfg := createTestBotConfig(t, s)
	conv := createTestConversation(t, s, cfg.ID)

	base := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, s.SaveMessage(ctx, &Message{
			ID:             uuid.New().String(),
			ConversationID: conv.ID,
			Text:           fmt.Sprintf("m%d", i),
			Role:           RoleCustomer,
			CreatedAt:      base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	msgs, err := s.RecentMessages(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[0].Text)
	assert.Equal(t, "m3", msgs[1].Text)
}

func TestMessages_AuthorPersistence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cfg := createTestBotConfig(t, s)
	conv := createTestConversation(t, s, cfg.ID)

	author := "staff-1"
	require.NoError(t, s.SaveMessage(ctx, &Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Text:           "hello from an agent",
		Role:           RoleAgent,
		AuthorUserID:   &author,
		CreatedAt:      time.Now(),
	}))

	msgs, _, err := s.ListMessages(ctx, conv.ID, MessageQuery{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleAgent, msgs[0].Role)
	require.NotNil(t, msgs[0].AuthorUserID)
	assert.Equal(t, author, *msgs[0].AuthorUserID)
}

func TestMessages_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cfg := createTestBotConfig(t, s)
	conv := createTestConversation(t, s, cfg.ID)

	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Text:           "delete me",
		Role:           RoleCustomer,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, s.SaveMessage(ctx, msg))
	require.NoError(t, s.DeleteMessage(ctx, msg.ID))

	_, err := s.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteMessage(ctx, msg.ID), ErrNotFound)
}

func TestBotConfig_ToolsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg := &BotConfig{
		ID:                 uuid.New().String(),
		Name:               "bot",
		Model:              "gpt-4o-mini",
		Temperature:        0.5,
		SystemInstructions: "instructions",
		Tools: []Tool{
			{
				Name:        "request_human_agent",
				Description: "Escalate to a human agent",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"user_reason": map[string]any{"type": "string"},
					},
				},
			},
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, s.CreateBotConfig(ctx, cfg))

	got, err := s.GetBotConfig(ctx, cfg.ID)
	require.NoError(t, err)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "request_human_agent", got.Tools[0].Name)
	assert.Contains(t, got.Tools[0].Parameters, "properties")
}

func TestBotConfig_Latest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LatestBotConfig(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	older := &BotConfig{
		ID: uuid.New().String(), Name: "old", Model: "m", Temperature: 0.1,
		CreatedAt: time.Now().Add(-time.Hour), UpdatedAt: time.Now().Add(-time.Hour),
	}
	newer := &BotConfig{
		ID: uuid.New().String(), Name: "new", Model: "m", Temperature: 0.1,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, s.CreateBotConfig(ctx, older))
	require.NoError(t, s.CreateBotConfig(ctx, newer))

	got, err := s.LatestBotConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Name)
}

func TestKnowledge_SaveListDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cfg := createTestBotConfig(t, s)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveKnowledgeEntry(ctx, &KnowledgeEntry{
			ID:          uuid.New().String(),
			BotConfigID: cfg.ID,
			Text:        fmt.Sprintf("passage %d", i),
			Embedding:   []float32{0.1, 0.2, 0.3},
			Metadata:    EntryMetadata{Kind: EntryKindFAQ},
			CreatedAt:   time.Now(),
		}))
	}

	entries, err := s.ListKnowledgeEntries(ctx, cfg.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, entries[0].Embedding)
	assert.Equal(t, EntryKindFAQ, entries[0].Metadata.Kind)

	count, err := s.CountKnowledgeEntries(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, s.DeleteKnowledgeEntries(ctx, cfg.ID))
	count, err = s.CountKnowledgeEntries(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Deleting again is not an error
	require.NoError(t, s.DeleteKnowledgeEntries(ctx, cfg.ID))
}

func TestTakeovers_AppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cfg := createTestBotConfig(t, s)
	conv := createTestConversation(t, s, cfg.ID)

	for i := 0; i < 2; i++ {
		require.NoError(t, s.CreateTakeover(ctx, &TakeoverRecord{
			ID:                uuid.New().String(),
			ConversationID:    conv.ID,
			TriggeredByUserID: "agent-1",
			Reason:            "Manual takeover",
			CreatedAt:         time.Now().Add(time.Duration(i) * time.Millisecond),
		}))
	}

	recs, err := s.ListTakeovers(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestStaff_FindAvailableAgent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.FindAvailableAgent(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	// Admins and inactive agents are never selected
	require.NoError(t, s.CreateStaffAccount(ctx, &StaffAccount{
		ID: uuid.New().String(), Email: "admin@example.com", Name: "Admin",
		PasswordHash: "x", Role: StaffRoleAdmin, Status: StaffStatusActive,
		CreatedAt: time.Now().Add(-3 * time.Hour),
	}))
	require.NoError(t, s.CreateStaffAccount(ctx, &StaffAccount{
		ID: uuid.New().String(), Email: "away@example.com", Name: "Away Agent",
		PasswordHash: "x", Role: StaffRoleAgent, Status: StaffStatusAway,
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}))
	require.NoError(t, s.CreateStaffAccount(ctx, &StaffAccount{
		ID: uuid.New().String(), Email: "first@example.com", Name: "First Agent",
		PasswordHash: "x", Role: StaffRoleAgent, Status: StaffStatusActive,
		CreatedAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, s.CreateStaffAccount(ctx, &StaffAccount{
		ID: uuid.New().String(), Email: "second@example.com", Name: "Second Agent",
		PasswordHash: "x", Role: StaffRoleAgent, Status: StaffStatusActive,
		CreatedAt: time.Now(),
	}))

	agent, err := s.FindAvailableAgent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first@example.com", agent.Email)
}

func TestStaff_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acct := &StaffAccount{
		ID: uuid.New().String(), Email: "dup@example.com", Name: "One",
		PasswordHash: "x", Role: StaffRoleAgent, Status: StaffStatusActive,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateStaffAccount(ctx, acct))

	dup := &StaffAccount{
		ID: uuid.New().String(), Email: "dup@example.com", Name: "Two",
		PasswordHash: "x", Role: StaffRoleAgent, Status: StaffStatusActive,
		CreatedAt: time.Now(),
	}
	assert.ErrorIs(t, s.CreateStaffAccount(ctx, dup), ErrDuplicateStaff)
}

func TestDocuments_ChunkRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cfg := createTestBotConfig(t, s)

	doc := &Document{
		ID:          uuid.New().String(),
		BotConfigID: cfg.ID,
		FileName:    "handbook.pdf",
		Chunks: []DocumentChunk{
			{Page: 1, Content: "refund policy", Embedding: []float32{0.5, 0.5}},
			{Page: 2, Content: "shipping times"},
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateDocument(ctx, doc))

	docs, err := s.ListDocuments(ctx, cfg.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Len(t, docs[0].Chunks, 2)
	assert.Equal(t, "refund policy", docs[0].Chunks[0].Content)
	assert.Equal(t, []float32{0.5, 0.5}, docs[0].Chunks[0].Embedding)
	assert.Nil(t, docs[0].Chunks[1].Embedding)
}
