package domain

import (
	"regexp"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	want := map[string]string{
		(Account{}).TableName():            "accounts",
		(ChatSession{}).TableName():        "chat_sessions",
		(SessionMessage{}).TableName():     "session_messages",
		(MessageLog{}).TableName():         "message_logs",
		(SubscriptionRecord{}).TableName(): "subscriptions",
		(Idempotency{}).TableName():        "idempotency",
	}
	for got, w := range want {
		if got != w {
			t.Fatalf("TableName() = %q; want %q", got, w)
		}
	}
}

func TestMigrations_Indexes_AndActiveUniqueness(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Account{}, &ChatSession{}, &SessionMessage{}, &MessageLog{}, &SubscriptionRecord{}, &Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	for _, idx := range []struct {
		model any
		name  string
	}{
		{&Account{}, "ux_accounts_email"},
		{&Account{}, "ux_accounts_api_key"},
		{&ChatSession{}, "ux_sessions_active"},
		{&ChatSession{}, "idx_account_sessions"},
		{&SessionMessage{}, "ux_session_seq"},
		{&MessageLog{}, "idx_account_logs"},
		{&SubscriptionRecord{}, "ux_subscriptions_external"},
	} {
		if !m.HasIndex(idx.model, idx.name) {
			t.Fatalf("expected index %s on %T", idx.name, idx.model)
		}
	}

	now := Now()
	s1 := &ChatSession{ID: "r1", SessionID: "s", AccountID: "a", Status: SessionEnded, StartTime: now, LastActivity: now}
	s2 := &ChatSession{ID: "r2", SessionID: "s", AccountID: "a", Status: SessionActive, StartTime: now, LastActivity: now}
	s3 := &ChatSession{ID: "r3", SessionID: "s", AccountID: "a", Status: SessionActive, StartTime: now, LastActivity: now}
	if err := db.Create(s1).Error; err != nil {
		t.Fatalf("insert ended: %v", err)
	}
	if err := db.Create(s2).Error; err != nil {
		t.Fatalf("insert active beside ended: %v", err)
	}
	if err := db.Create(s3).Error; err == nil {
		t.Fatalf("second active record with the same session id must violate the partial unique index")
	}

	// Many accounts without an API key.
	for _, id := range []string{"a1", "a2"} {
		if err := db.Create(&Account{ID: id, Name: id, Email: id + "@x.io", PasswordHash: "h"}).Error; err != nil {
			t.Fatalf("insert account without key: %v", err)
		}
	}

	// (session_ref, seq) is unique.
	msg := func(id string, seq int) *SessionMessage {
		return &SessionMessage{MessageID: id, SessionRef: "r2", Seq: seq, Role: RoleUser, Content: "hi", Timestamp: now}
	}
	if err := db.Create(msg("m1", 0)).Error; err != nil {
		t.Fatalf("insert m1: %v", err)
	}
	if err := db.Create(msg("m2", 0)).Error; err == nil {
		t.Fatalf("duplicate seq must be rejected")
	}
	bad := &SessionMessage{MessageID: "m3", SessionRef: "r2", Seq: 1, Role: "robot", Content: "x", Timestamp: now}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("role outside enum must be rejected")
	}
}

func TestSummarize_CountsAndTotals(t *testing.T) {
	msgs := []SessionMessage{
		{Role: RoleUser},
		{Role: RoleAssistant, Metadata: MessageMetadata{Tokens: TokenUsage{Total: 30}, Cost: 0.0003}},
		{Role: RoleSystem},
		{Role: RoleUser},
		{Role: RoleAssistant, Metadata: MessageMetadata{Tokens: TokenUsage{Total: 10}, Cost: 0.0001}},
	}
	s := Summarize(msgs)
	if s.TotalMessages != 5 || s.UserMessages != 2 || s.AssistantMessages != 2 || s.SystemMessages != 1 {
		t.Fatalf("counts unexpected: %+v", s)
	}
	if s.UserMessages+s.AssistantMessages+s.SystemMessages != s.TotalMessages {
		t.Fatalf("role counters must add up")
	}
	if s.TotalTokens != 40 {
		t.Fatalf("tokens = %d", s.TotalTokens)
	}
	if d := s.TotalCost - 0.0004; d > 1e-12 || d < -1e-12 {
		t.Fatalf("cost = %v", s.TotalCost)
	}

	var inc SessionSummary
	for _, m := range msgs {
		inc.Add(m)
	}
	if inc != s {
		t.Fatalf("incremental %+v != recomputed %+v", inc, s)
	}
}

func TestActiveSince(t *testing.T) {
	now := Now()
	s := ChatSession{Status: SessionActive, LastActivity: now.Add(-time.Hour)}
	if !s.ActiveSince(now.Add(-2 * time.Hour)) {
		t.Fatalf("recent active session should qualify")
	}
	if s.ActiveSince(now.Add(-30 * time.Minute)) {
		t.Fatalf("stale session should not qualify")
	}
	s.Status = SessionEnded
	if s.ActiveSince(now.Add(-2 * time.Hour)) {
		t.Fatalf("ended session should not qualify")
	}
}

func TestNextActivity_StrictlyIncreasing(t *testing.T) {
	prev := Now()
	if got := NextActivity(prev, prev); !got.After(prev) {
		t.Fatalf("same instant must advance: %v !> %v", got, prev)
	}
	if got := NextActivity(prev, prev.Add(-time.Second)); !got.After(prev) {
		t.Fatalf("clock going back must still advance")
	}
	later := prev.Add(time.Second)
	if got := NextActivity(prev, later); !got.Equal(later) {
		t.Fatalf("later now should be used as-is")
	}
}

func TestNewMessageID_Format(t *testing.T) {
	id := NewMessageID(time.UnixMilli(1700000000123))
	if !regexp.MustCompile(`^msg_[0-9a-f]{12}_1700000000123$`).MatchString(id) {
		t.Fatalf("unexpected id %q", id)
	}
	if NewMessageID(time.Now()) == NewMessageID(time.Now()) {
		t.Fatalf("ids should differ")
	}
}

func TestValidators(t *testing.T) {
	if !ValidRole(RoleSystem) || ValidRole("bot") {
		t.Fatalf("ValidRole mismatch")
	}
	if ValidSessionID("") || ValidSessionID("   ") || !ValidSessionID("abc") {
		t.Fatalf("ValidSessionID mismatch")
	}
	long := make([]byte, MaxSessionIDLen+1)
	for i := range long {
		long[i] = 'x'
	}
	if ValidSessionID(string(long)) {
		t.Fatalf("overlong id should be rejected")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Fatalf("NormalizeEmail = %q", got)
	}
	var a Account
	if a.Key() != "" {
		t.Fatalf("nil key should read as empty")
	}
	k := "cb_x"
	a.APIKey = &k
	if a.Key() != k {
		t.Fatalf("Key() mismatch")
	}
}
