package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"
)

const telegramTextLimit = 4096

// TelegramSink sends results to Telegram chats. Targets are "<chat_id>"
// or "<chat_id>:<thread_id>".
type TelegramSink struct {
	bot *tele.Bot
}

type TelegramConfig struct {
	Token       string
	PollTimeout time.Duration
}

func NewTelegramSink(cfg TelegramConfig) (*TelegramSink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSink{bot: b}, nil
}

func (t *TelegramSink) Send(ctx context.Context, target, text string) error {
	chatID, threadID, err := parseTarget(target)
	if err != nil {
		return err
	}
	chat := &tele.Chat{ID: chatID}

	for _, chunk := range splitText(text, telegramTextLimit) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, err := t.bot.Send(chat, chunk, &tele.SendOptions{
			ThreadID:              threadID,
			DisableWebPagePreview: true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func parseTarget(target string) (chatID int64, threadID int, err error) {
	target = strings.TrimSpace(target)
	// Accept an explicit scheme prefix so configs read naturally.
	target = strings.TrimPrefix(target, "telegram:")

	head, tail, hasThread := strings.Cut(target, ":")
	chatID, err = strconv.ParseInt(head, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid telegram target %q: %w", target, err)
	}
	if hasThread {
		threadID, err = strconv.Atoi(tail)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid telegram thread in %q: %w", target, err)
		}
	}
	return chatID, threadID, nil
}

// splitText chunks long results at newline boundaries where possible,
// never inside a multi-byte rune.
func splitText(s string, limit int) []string {
	if len(s) <= limit {
		return []string{s}
	}
	var chunks []string
	for len(s) > limit {
		cut := strings.LastIndexByte(s[:limit], '\n')
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(s[cut]) {
				cut--
			}
			if cut == 0 {
				// No rune boundary in range (invalid UTF-8): hard cut.
				cut = limit
			}
		}
		chunks = append(chunks, s[:cut])
		s = strings.TrimLeft(s[cut:], "\n")
	}
	if s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}
