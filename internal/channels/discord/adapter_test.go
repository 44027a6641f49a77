package discord

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/openclaw/openclaw/internal/channels"
	"github.com/openclaw/openclaw/internal/config"
	"github.com/openclaw/openclaw/pkg/models"
)

// fakeSession scripts the REST surface the adapter touches. Message IDs
// are fixed-width so lexical comparison matches numeric order.
type fakeSession struct {
	mu        sync.Mutex
	user      *discordgo.User
	userErr   error
	queue     []*discordgo.Message
	sendErr   error
	sent      []string
	reactions []string
	typing    int
}

func (f *fakeSession) User(userID string, _ ...discordgo.RequestOption) (*discordgo.User, error) {
	if f.userErr != nil {
		return nil, f.userErr
	}
	return f.user, nil
}

func (f *fakeSession) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, _ ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*discordgo.Message
	for i := len(f.queue) - 1; i >= 0; i-- {
		m := f.queue[i]
		if m.ChannelID != channelID {
			continue
		}
		if afterID != "" && m.ID <= afterID {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSession) ChannelMessageSend(channelID string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, content)
	return &discordgo.Message{ID: "sent", ChannelID: channelID, Content: content}, nil
}

func (f *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, "reply:"+data.Content)
	return &discordgo.Message{ID: "sent", ChannelID: channelID}, nil
}

func (f *fakeSession) ChannelTyping(channelID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
	return nil
}

func (f *fakeSession) MessageReactionAdd(channelID, messageID, emoji string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, messageID+":"+emoji)
	return nil
}

func (f *fakeSession) push(m *discordgo.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, m)
}

func (f *fakeSession) snapshot() (sent, reactions []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...), append([]string(nil), f.reactions...)
}

type fakePresence struct {
	mu       sync.Mutex
	startErr error
	started  bool
	stopped  bool
}

func (p *fakePresence) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return p.startErr
	}
	p.started = true
	return nil
}

func (p *fakePresence) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	return nil
}

func testConfig() config.DiscordConfig {
	return config.DiscordConfig{
		Enabled:         true,
		BotToken:        "token",
		ChannelIDs:      []string{"chan1"},
		PollIntervalMs:  1,
		PresenceEnabled: true,
	}
}

func newStartedAdapter(t *testing.T, cfg config.DiscordConfig, session *fakeSession, presence Presence) (*Adapter, chan models.InboundMessage) {
	t.Helper()
	a, err := New(cfg, presence, nil)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	a.session = session

	inbound := make(chan models.InboundMessage, 16)
	a.SetInboundHandler(func(ctx context.Context, msg models.InboundMessage) {
		inbound <- msg
	})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { a.Stop(context.Background()) })
	return a, inbound
}

func waitInbound(t *testing.T, ch chan models.InboundMessage) models.InboundMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound message delivered")
		return models.InboundMessage{}
	}
}

func TestNewRequiresTokenAndChannels(t *testing.T) {
	if _, err := New(config.DiscordConfig{ChannelIDs: []string{"c"}}, nil, nil); err == nil {
		t.Error("missing token accepted")
	}
	if _, err := New(config.DiscordConfig{BotToken: "t"}, nil, nil); err == nil {
		t.Error("missing channel IDs accepted")
	}
}

func TestStartRejectsBadToken(t *testing.T) {
	a, err := New(testConfig(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	a.session = &fakeSession{userErr: errors.New("401 unauthorized")}

	err = a.Start(context.Background())
	var chErr *channels.Error
	if !errors.As(err, &chErr) || chErr.Code != channels.ErrCodeAuthentication {
		t.Errorf("want AUTH_ERROR, got %v", err)
	}
}

func TestPollSkipsBacklogAndDeliversNewMentions(t *testing.T) {
	session := &fakeSession{user: &discordgo.User{ID: "bot1", Username: "claw"}}
	session.push(&discordgo.Message{
		ID: "0001", ChannelID: "chan1", Content: "old backlog",
		Author: &discordgo.User{ID: "u1"},
	})

	_, inbound := newStartedAdapter(t, testConfig(), session, nil)

	session.push(&discordgo.Message{
		ID: "0002", ChannelID: "chan1", Content: "<@bot1> hello there",
		Author:   &discordgo.User{ID: "u1", Username: "alice"},
		Mentions: []*discordgo.User{{ID: "bot1"}},
	})

	msg := waitInbound(t, inbound)
	if msg.Text != "hello there" {
		t.Errorf("text = %q, want mention stripped", msg.Text)
	}
	if msg.Channel != models.ChannelDiscord || msg.PeerID != "chan1" || msg.MessageID != "0002" {
		t.Errorf("unexpected message: %+v", msg)
	}

	// The backlog message must never arrive.
	select {
	case extra := <-inbound:
		t.Fatalf("backlog delivered: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPollIgnoresUnmentionedAndBotMessages(t *testing.T) {
	session := &fakeSession{user: &discordgo.User{ID: "bot1", Username: "claw"}}
	_, inbound := newStartedAdapter(t, testConfig(), session, nil)

	session.push(&discordgo.Message{
		ID: "0001", ChannelID: "chan1", Content: "no mention here",
		Author: &discordgo.User{ID: "u1"},
	})
	session.push(&discordgo.Message{
		ID: "0002", ChannelID: "chan1", Content: "@claw from a bot",
		Author: &discordgo.User{ID: "b2", Bot: true},
	})
	session.push(&discordgo.Message{
		ID: "0003", ChannelID: "chan1", Content: "hey @claw ping",
		Author: &discordgo.User{ID: "u1"},
	})

	msg := waitInbound(t, inbound)
	if msg.MessageID != "0003" {
		t.Errorf("delivered %q, want plain-text mention 0003", msg.MessageID)
	}
}

func TestMentionFilterDisabledDeliversEverything(t *testing.T) {
	cfg := testConfig()
	off := false
	cfg.MentionOnly = &off

	session := &fakeSession{user: &discordgo.User{ID: "bot1", Username: "claw"}}
	_, inbound := newStartedAdapter(t, cfg, session, nil)

	session.push(&discordgo.Message{
		ID: "0001", ChannelID: "chan1", Content: "no mention",
		Author: &discordgo.User{ID: "u1"},
	})
	if msg := waitInbound(t, inbound); msg.Text != "no mention" {
		t.Errorf("text = %q", msg.Text)
	}
}

func TestAckReactionAddedBeforeReply(t *testing.T) {
	session := &fakeSession{user: &discordgo.User{ID: "bot1", Username: "claw"}}
	_, inbound := newStartedAdapter(t, testConfig(), session, nil)

	session.push(&discordgo.Message{
		ID: "0001", ChannelID: "chan1", Content: "<@bot1> hi",
		Author:   &discordgo.User{ID: "u1"},
		Mentions: []*discordgo.User{{ID: "bot1"}},
	})
	waitInbound(t, inbound)

	_, reactions := session.snapshot()
	if len(reactions) != 1 || !strings.HasPrefix(reactions[0], "0001:") {
		t.Errorf("reactions = %v", reactions)
	}
}

func TestSendPlainAndReply(t *testing.T) {
	session := &fakeSession{user: &discordgo.User{ID: "bot1", Username: "claw"}}
	a, _ := newStartedAdapter(t, testConfig(), session, nil)

	err := a.Send(context.Background(), models.OutboundMessage{PeerID: "chan1", Text: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	err = a.Send(context.Background(), models.OutboundMessage{PeerID: "chan1", Text: "threaded", ReplyToID: "0001"})
	if err != nil {
		t.Fatalf("send reply: %v", err)
	}

	sent, _ := session.snapshot()
	if len(sent) != 2 || sent[0] != "hi" || sent[1] != "reply:threaded" {
		t.Errorf("sent = %v", sent)
	}
}

func TestSendClassifiesRateLimit(t *testing.T) {
	session := &fakeSession{
		user:    &discordgo.User{ID: "bot1", Username: "claw"},
		sendErr: errors.New("HTTP 429 Too Many Requests"),
	}
	a, _ := newStartedAdapter(t, testConfig(), session, nil)

	err := a.Send(context.Background(), models.OutboundMessage{PeerID: "chan1", Text: "x"})
	var chErr *channels.Error
	if !errors.As(err, &chErr) || chErr.Code != channels.ErrCodeRateLimit {
		t.Fatalf("want RATE_LIMIT_ERROR, got %v", err)
	}
	if !chErr.IsRetryable() {
		t.Error("rate limit should be retryable")
	}
}

func TestStartFailsWhenPresenceFails(t *testing.T) {
	session := &fakeSession{user: &discordgo.User{ID: "bot1", Username: "claw"}}
	presence := &fakePresence{startErr: errors.New("gateway unreachable")}
	a, err := New(testConfig(), presence, nil)
	if err != nil {
		t.Fatal(err)
	}
	a.session = session

	if err := a.Start(context.Background()); err == nil {
		t.Fatal("presence start failure not surfaced")
	}

	// A failed start must leave the adapter restartable.
	presence.startErr = nil
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("restart after presence failure: %v", err)
	}
	t.Cleanup(func() { a.Stop(context.Background()) })
}

func TestPresenceStoppedOnAdapterStop(t *testing.T) {
	session := &fakeSession{user: &discordgo.User{ID: "bot1", Username: "claw"}}
	presence := &fakePresence{}
	a, _ := newStartedAdapter(t, testConfig(), session, presence)

	presence.mu.Lock()
	started := presence.started
	presence.mu.Unlock()
	if !started {
		t.Fatal("presence not started")
	}

	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	presence.mu.Lock()
	stopped := presence.stopped
	presence.mu.Unlock()
	if !stopped {
		t.Error("presence not stopped")
	}
}

func TestNotifyTypingBestEffort(t *testing.T) {
	session := &fakeSession{user: &discordgo.User{ID: "bot1", Username: "claw"}}
	a, _ := newStartedAdapter(t, testConfig(), session, nil)

	if err := a.NotifyTyping(context.Background(), models.OutboundMessage{PeerID: "chan1"}); err != nil {
		t.Fatalf("notifyTyping: %v", err)
	}
	session.mu.Lock()
	typing := session.typing
	session.mu.Unlock()
	if typing != 1 {
		t.Errorf("typing calls = %d, want 1", typing)
	}
}
