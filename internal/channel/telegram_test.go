package channel

import (
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"habitvoice/internal/bus"
	"habitvoice/internal/config"
)

// mockBot captures sent messages without touching the Telegram API.
type mockBot struct {
	sent []tgbotapi.Chattable
}

func (m *mockBot) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}
func (m *mockBot) StopReceivingUpdates() {}
func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.sent = append(m.sent, c)
	return tgbotapi.Message{}, nil
}
func (m *mockBot) GetSelf() tgbotapi.User { return tgbotapi.User{UserName: "testbot"} }
func (m *mockBot) GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error) {
	return tgbotapi.File{}, nil
}

func newTestTelegramChannel(t *testing.T, allowFrom []string) (*TelegramChannel, *mockBot, *bus.MessageBus) {
	t.Helper()
	b := bus.NewMessageBus(10)
	ch, err := NewTelegramChannel(config.TelegramConfig{Token: "test-token", AllowFrom: allowFrom}, b)
	if err != nil {
		t.Fatal(err)
	}
	bot := &mockBot{}
	ch.SetBot(bot)
	return ch, bot, b
}

func TestTelegramChannel_RequiresToken(t *testing.T) {
	b := bus.NewMessageBus(1)
	if _, err := NewTelegramChannel(config.TelegramConfig{}, b); err == nil {
		t.Error("expected error for missing token")
	}
}

func TestTelegramChannel_HandleMessage(t *testing.T) {
	ch, _, b := newTestTelegramChannel(t, nil)

	ch.handleMessage(&tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: 42, UserName: "sam"},
		Chat:      &tgbotapi.Chat{ID: 42},
		Text:      "I ran 3 miles",
		Date:      int(time.Now().Unix()),
	})

	select {
	case u := <-b.Inbound:
		if u.Channel != "telegram" {
			t.Errorf("channel = %q", u.Channel)
		}
		if u.SenderID != "42" || u.ChatID != "42" {
			t.Errorf("sender = %q chat = %q", u.SenderID, u.ChatID)
		}
		if u.Text != "I ran 3 miles" {
			t.Errorf("text = %q", u.Text)
		}
		if u.Source != bus.SourceText {
			t.Errorf("source = %q, want text", u.Source)
		}
	default:
		t.Fatal("no inbound utterance produced")
	}
}

func TestTelegramChannel_RejectsUnlistedSender(t *testing.T) {
	ch, _, b := newTestTelegramChannel(t, []string{"99"})

	ch.handleMessage(&tgbotapi.Message{
		From: &tgbotapi.User{ID: 42},
		Chat: &tgbotapi.Chat{ID: 42},
		Text: "hello",
		Date: int(time.Now().Unix()),
	})

	select {
	case u := <-b.Inbound:
		t.Fatalf("utterance from unlisted sender leaked: %+v", u)
	default:
	}
}

func TestTelegramChannel_SendChunksLongContent(t *testing.T) {
	ch, bot, _ := newTestTelegramChannel(t, nil)

	long := strings.Repeat("line of progress text\n", 400) // ~8800 chars
	if err := ch.Send(bus.OutboundReply{ChatID: "42", Content: long}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if len(bot.sent) < 2 {
		t.Errorf("sent = %d messages, want chunked into at least 2", len(bot.sent))
	}
	for _, c := range bot.sent {
		msg, ok := c.(tgbotapi.MessageConfig)
		if !ok {
			t.Fatalf("unexpected chattable type %T", c)
		}
		if len(msg.Text) > 4000 {
			t.Errorf("chunk length = %d, want <= 4000", len(msg.Text))
		}
	}
}

func TestTelegramChannel_SendInvalidChatID(t *testing.T) {
	ch, _, _ := newTestTelegramChannel(t, nil)
	if err := ch.Send(bus.OutboundReply{ChatID: "not-a-number", Content: "hi"}); err == nil {
		t.Error("expected error for non-numeric chat id")
	}
}
