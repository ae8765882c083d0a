// Package telegram is a minimal Bot API client. The core only depends on
// the bot.Transport interface; this is the one concrete implementation.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chatforge/botvault/internal/bot"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	pollTimeout    = 30 * time.Second
)

type Client struct {
	token   string
	baseURL string
	httpc   *http.Client
}

func NewClient(botToken string) *Client {
	return &Client{
		token:   botToken,
		baseURL: defaultBaseURL,
		// Long polls hold the connection for pollTimeout; leave headroom.
		httpc: &http.Client{Timeout: pollTimeout + 10*time.Second},
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

func (c *Client) call(ctx context.Context, method string, form url.Values) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("telegram %s: %s", method, parsed.Description)
	}
	return parsed.Result, nil
}

// SendMessage implements bot.Transport.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	form := url.Values{
		"chat_id": {strconv.FormatInt(chatID, 10)},
		"text":    {text},
	}
	_, err := c.call(ctx, "sendMessage", form)
	return err
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID        int64  `json:"id"`
			Type      string `json:"type"`
			Username  string `json:"username"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		} `json:"chat"`
	} `json:"message"`
}

// Poll long-polls getUpdates and feeds inbound messages to out until the
// context is cancelled. The channel is closed on return.
func (c *Client) Poll(ctx context.Context, out chan<- bot.InboundEvent) {
	defer close(out)

	var offset int64
	for ctx.Err() == nil {
		form := url.Values{
			"timeout": {strconv.Itoa(int(pollTimeout / time.Second))},
			"offset":  {strconv.FormatInt(offset, 10)},
		}
		raw, err := c.call(ctx, "getUpdates", form)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("⚠️ getUpdates failed, retrying: %v", err)
			time.Sleep(3 * time.Second)
			continue
		}

		var updates []update
		if err := json.Unmarshal(raw, &updates); err != nil {
			log.Printf("⚠️ getUpdates: bad payload: %v", err)
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil {
				continue
			}
			ev := bot.InboundEvent{
				ChatID:    u.Message.Chat.ID,
				ChatType:  u.Message.Chat.Type,
				Username:  u.Message.Chat.Username,
				FirstName: u.Message.Chat.FirstName,
				LastName:  u.Message.Chat.LastName,
				Text:      u.Message.Text,
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
