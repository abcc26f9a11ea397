package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"
	"unicode/utf8"
)

// DefaultTimeout は長い生成を待てるように長めにしてあるのだ。キャンセルは呼び出し元の context に任せます。
const DefaultTimeout = 3 * time.Minute

const (
	defaultMaxRetries = 3
	maxErrorBodyLen   = 300
)

// RetryBaseDelay は 429 を受けたときの指数バックオフの基準時間なのだ。テストでは短く差し替えます。
var RetryBaseDelay = 2 * time.Second

// StatusError は API が 2xx 以外を返したときのエラーなのだ。
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: %s (%s)", e.Status, e.Body)
}

// IsStatus は err が指定ステータスの StatusError か判定します。
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// PickHTTPClient は指定が無ければデフォルトのタイムアウト付きクライアントを返すのだ。
func PickHTTPClient(custom *http.Client) *http.Client {
	if custom != nil {
		return custom
	}
	return &http.Client{Timeout: DefaultTimeout}
}

// PostJSON は payload を JSON で POST し、レスポンスを out にデコードするのだ。
// 429 の間は指数バックオフで再試行します。リクエストボディは毎回作り直すのだ。
func PostJSON(ctx context.Context, client *http.Client, endpoint string, headers map[string]string, payload, out any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
		if err != nil {
			return fmt.Errorf("リクエストの作成に失敗しました: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%s への送信に失敗しました: %w", endpoint, err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("レスポンスの読み込みに失敗しました: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < defaultMaxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
			slog.Warn("レート制限に達したので待ってから再試行するのだ",
				"endpoint", endpoint, "backoff", backoff, "attempt", attempt+1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			continue
		}

		if resp.StatusCode >= 400 {
			return &StatusError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       Truncate(string(body), maxErrorBodyLen),
			}
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("レスポンスJSONの解析に失敗しました (応答抜粋: %q): %w", Truncate(string(body), maxErrorBodyLen), err)
		}
		return nil
	}
}

// Truncate は長すぎる文字列を maxLen バイト以内の文字境界で切り詰めるのだ。
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// Fetch は URL の中身を取得し、本文と Content-Type を返すのだ。画像のダウンロードに使います。
func Fetch(ctx context.Context, client *http.Client, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%s の取得に失敗しました: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("レスポンスの読み込みに失敗しました: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, "", &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       Truncate(string(body), maxErrorBodyLen),
		}
	}
	return body, resp.Header.Get("Content-Type"), nil
}
