// ABOUTME: Store interface and data types for bosar-gateway persistence
// ABOUTME: Defines Conversation, Message, BotConfig, KnowledgeEntry and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateStaff is returned when creating a staff account with an email that already exists
var ErrDuplicateStaff = errors.New("staff account already exists")

// ConversationStatus is the lifecycle state of a conversation.
// Transitions only move forward: automated -> pending -> human, or
// automated -> human directly. Reversal is an administrative action.
type ConversationStatus string

const (
	StatusAutomated ConversationStatus = "automated"
	StatusPending   ConversationStatus = "pending"
	StatusHuman     ConversationStatus = "human"
)

// Valid reports whether s is a known conversation status.
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusAutomated, StatusPending, StatusHuman:
		return true
	}
	return false
}

// Conversation is a threaded exchange between one customer and the support system
type Conversation struct {
	ID             string
	CustomerID     string
	AssignedUserID *string
	BotConfigID    string
	Status         ConversationStatus
	CustomerIP     *string
	MessageCount   int
	LastMessageAt  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MessageRole identifies who authored a message.
type MessageRole string

const (
	RoleCustomer  MessageRole = "customer"
	RoleAssistant MessageRole = "assistant"
	RoleAgent     MessageRole = "agent"
)

// Valid reports whether r is a known message role.
func (r MessageRole) Valid() bool {
	switch r {
	case RoleCustomer, RoleAssistant, RoleAgent:
		return true
	}
	return false
}

// Message is a single message within a conversation.
// AuthorUserID is always nil for customer and assistant roles.
type Message struct {
	ID             string
	ConversationID string
	Text           string
	Role           MessageRole
	AuthorUserID   *string
	CreatedAt      time.Time
}

// Tool is a named, schema-described capability declared on a bot config.
// Only request_human_agent is interpreted by the orchestrator; everything
// else is passed through to the generative provider untouched.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// BotConfig holds the generative model settings for a bot.
// Read-only to the orchestration core; owned by configuration management.
type BotConfig struct {
	ID                 string
	Name               string
	Model              string
	Temperature        float64
	SystemInstructions string
	Tools              []Tool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// FAQ is a question/answer pair attached to a bot config
type FAQ struct {
	ID          string
	BotConfigID string
	Question    string
	Answer      string
	CreatedAt   time.Time
}

// DocumentChunk is one pre-split passage of an uploaded document.
// Embedding may be empty; the knowledge rebuild embeds it on demand.
type DocumentChunk struct {
	Page      int       `json:"page"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Document is an uploaded source document, stored pre-chunked.
// Upload and parsing happen outside the orchestration core.
type Document struct {
	ID          string
	BotConfigID string
	FileName    string
	Content     string // original markdown/text, kept for re-chunking
	Chunks      []DocumentChunk
	CreatedAt   time.Time
}

// Knowledge entry source kinds
const (
	EntryKindFAQ      = "faq"
	EntryKindDocument = "document"
)

// EntryMetadata carries source attribution for a knowledge entry
type EntryMetadata struct {
	Kind       string `json:"type"`
	FAQID      string `json:"faqId,omitempty"`
	Question   string `json:"question,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
	FileName   string `json:"fileName,omitempty"`
	Page       int    `json:"page,omitempty"`
}

// KnowledgeEntry is a stored passage with a precomputed embedding.
// Rebuilt wholesale per bot config; the retrieval engine only reads it.
type KnowledgeEntry struct {
	ID          string
	BotConfigID string
	Text        string
	Embedding   []float32
	Metadata    EntryMetadata
	CreatedAt   time.Time
}

// TakeoverRecord is one append-only entry in the escalation audit trail.
// Multiple records per conversation are valid history, not an error.
type TakeoverRecord struct {
	ID               string
	ConversationID   string
	TriggeredByUserID string
	Reason           string
	CreatedAt        time.Time
}

// Staff roles and statuses
const (
	StaffRoleAdmin = "admin"
	StaffRoleAgent = "agent"

	StaffStatusActive   = "active"
	StaffStatusAway     = "away"
	StaffStatusDisabled = "disabled"
)

// StaffAccount is an authenticated support staff member
type StaffAccount struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         string
	Status       string
	CreatedAt    time.Time
}

// MessageQuery selects a page of messages within a conversation.
// AfterID/BeforeID are cursor message ids; Limit is capped by the store.
type MessageQuery struct {
	Limit    int
	Offset   int
	AfterID  string
	BeforeID string
}

// Store defines the interface for bosar-gateway persistence
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	FindActiveConversation(ctx context.Context, customerID, botConfigID string) (*Conversation, error)
	ListConversations(ctx context.Context, limit int) ([]*Conversation, error)
	SetConversationStatus(ctx context.Context, id string, status ConversationStatus, assignedUserID *string) error
	SetConversationIP(ctx context.Context, id, ip string) error
	BumpConversationActivity(ctx context.Context, id string, at time.Time) error

	// Messages
	SaveMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListMessages(ctx context.Context, conversationID string, q MessageQuery) ([]*Message, int, error)
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
	DeleteMessage(ctx context.Context, id string) error

	// Bot configs and FAQs
	CreateBotConfig(ctx context.Context, cfg *BotConfig) error
	GetBotConfig(ctx context.Context, id string) (*BotConfig, error)
	LatestBotConfig(ctx context.Context) (*BotConfig, error)
	ListBotConfigs(ctx context.Context) ([]*BotConfig, error)
	CreateFAQ(ctx context.Context, faq *FAQ) error
	ListFAQs(ctx context.Context, botConfigID string) ([]*FAQ, error)

	// Documents (pre-chunked, written by external upload pipeline)
	CreateDocument(ctx context.Context, doc *Document) error
	ListDocuments(ctx context.Context, botConfigID string) ([]*Document, error)

	// Knowledge entries
	SaveKnowledgeEntry(ctx context.Context, entry *KnowledgeEntry) error
	ListKnowledgeEntries(ctx context.Context, botConfigID string) ([]*KnowledgeEntry, error)
	DeleteKnowledgeEntries(ctx context.Context, botConfigID string) error
	CountKnowledgeEntries(ctx context.Context, botConfigID string) (int, error)

	// Takeover audit trail
	CreateTakeover(ctx context.Context, rec *TakeoverRecord) error
	ListTakeovers(ctx context.Context, conversationID string) ([]*TakeoverRecord, error)

	// Staff directory
	CreateStaffAccount(ctx context.Context, acct *StaffAccount) error
	GetStaffAccount(ctx context.Context, id string) (*StaffAccount, error)
	GetStaffByEmail(ctx context.Context, email string) (*StaffAccount, error)
	ListStaffAccounts(ctx context.Context) ([]*StaffAccount, error)
	FindAvailableAgent(ctx context.Context) (*StaffAccount, error)

	Close() error
}
