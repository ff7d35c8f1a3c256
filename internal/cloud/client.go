// Package cloud はクラウド測定プロバイダのHTTPクライアントを提供する。
// サインイン（セッションクッキー取得）、センサー一覧取得、
// 時系列測定値取得の3エンドポイントを扱う。
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dlogic/tagreport/internal/model"
)

const (
	signInEndpoint      = "/ethAccount.asmx/SignIn"
	listSensorsEndpoint = "/ethClient.asmx/GetTagList2"
	fetchSeriesEndpoint = "/ethLogShared.asmx/GetTemperatureRawDataByUUID"

	// sessionCookieName はプロバイダがサインイン時に発行するクッキー名。
	sessionCookieName = "WTAG"

	// requestDateLayout は測定値取得リクエストの日時書式。
	requestDateLayout = "1/2/2006 15:04"
)

// rowTimeLayouts は測定行のtimeフィールドに現れる書式。順に試行する。
var rowTimeLayouts = []string{
	"1/2/2006 3:04:05 PM -07:00",
	"1/2/2006 3:04:05 PM",
	time.RFC3339,
}

// SeriesResult は1センサーの測定値取得結果。
// 行単位のパース失敗は例外にせず、スキップ件数として集計する。
type SeriesResult struct {
	Records []model.MeasurementRecord
	Parsed  int
	Skipped int
}

// Client はプロバイダAPIのHTTPクライアント。
// 呼び出しごとにレートリミッタで送信間隔を制御する。
// 呼び出し間で保持する状態はない（セッショントークンは呼び出し元が持つ）。
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient はClientを生成する。
// ratePerSecが0以下の場合はレート制限なしとして扱う。
func NewClient(baseURL string, timeout time.Duration, ratePerSec float64, logger *slog.Logger) *Client {
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// SignIn は資格情報をセッショントークンに交換する。
// Set-CookieにWTAGクッキーが含まれない・空の場合はAuthErrorを返す。
func (c *Client) SignIn(ctx context.Context, account model.Account) (string, error) {
	body, err := json.Marshal(map[string]string{
		"email":    account.Email,
		"password": account.Password,
	})
	if err != nil {
		return "", fmt.Errorf("サインインリクエストの生成に失敗: %w", err)
	}

	resp, err := c.post(ctx, signInEndpoint, body, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", model.NewAuthError(account.Email, fmt.Sprintf("ステータス %d", resp.StatusCode))
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == sessionCookieName {
			if cookie.Value == "" {
				return "", model.NewAuthError(account.Email, "セッションクッキーが空です")
			}
			return cookie.Value, nil
		}
	}
	return "", model.NewAuthError(account.Email, "セッションクッキーがありません")
}

// tagPayload はGetTagList2レスポンスの1センサー分。
type tagPayload struct {
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	ManagerName string `json:"managerName"`
	MAC         string `json:"mac"`
}

// ListSensors は認証済みセッションから見える全センサーを取得する。
// 非成功ステータスの場合は生のボディを保持したRemoteErrorを返す。
func (c *Client) ListSensors(ctx context.Context, sessionID string) ([]model.Sensor, error) {
	resp, err := c.post(ctx, listSensorsEndpoint, []byte("{}"), sessionID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, model.NewRemoteError(listSensorsEndpoint, resp.StatusCode, string(respBody))
	}

	var envelope struct {
		D []tagPayload `json:"d"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("センサー一覧のパースに失敗: %w", err)
	}

	// エンベロープのdがnullの場合は空リストとして扱う
	sensors := make([]model.Sensor, 0, len(envelope.D))
	for _, p := range envelope.D {
		u, err := uuid.Parse(p.UUID)
		if err != nil {
			c.logger.Warn("不正なセンサーuuidをスキップします",
				slog.String("uuid", p.UUID),
				slog.String("name", p.Name),
			)
			continue
		}
		sensors = append(sensors, model.Sensor{
			UUID:        u,
			Name:        p.Name,
			ManagerName: p.ManagerName,
			ManagerMAC:  p.MAC,
		})
	}
	return sensors, nil
}

// seriesRow はGetTemperatureRawDataByUUIDレスポンスの1測定行。
type seriesRow struct {
	Time  string  `json:"time"`
	TempC float64 `json:"temp_degC"`
	Cap   float64 `json:"cap"`
}

// FetchSeries は1センサーの測定値を期間指定で取得する。
// timeが欠落・不正な行はスキップして集計を続行する（行単位の失敗で
// 全体を中断しない）。温度は小数第6位に丸める。
func (c *Client) FetchSeries(ctx context.Context, sessionID string, sensorUUID uuid.UUID, from, to time.Time) (SeriesResult, error) {
	body, err := json.Marshal(map[string]string{
		"uuid":     sensorUUID.String(),
		"fromDate": from.Format(requestDateLayout),
		"toDate":   to.Format(requestDateLayout),
	})
	if err != nil {
		return SeriesResult{}, fmt.Errorf("測定値リクエストの生成に失敗: %w", err)
	}

	resp, err := c.post(ctx, fetchSeriesEndpoint, body, sessionID)
	if err != nil {
		return SeriesResult{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return SeriesResult{}, fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return SeriesResult{}, model.NewRemoteError(fetchSeriesEndpoint, resp.StatusCode, string(respBody))
	}

	var envelope struct {
		D []seriesRow `json:"d"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return SeriesResult{}, fmt.Errorf("測定値のパースに失敗: %w", err)
	}

	result := SeriesResult{Records: []model.MeasurementRecord{}}
	var firstSkip *model.ParseError
	for _, row := range envelope.D {
		t, ok := parseRowTime(row.Time)
		if !ok {
			result.Skipped++
			if firstSkip == nil {
				firstSkip = model.NewParseError("time", row.Time)
			}
			continue
		}
		result.Records = append(result.Records, model.MeasurementRecord{
			Time:        t,
			Temperature: round6(row.TempC),
			Cap:         row.Cap,
		})
		result.Parsed++
	}

	if result.Skipped > 0 {
		c.logger.Warn("パースできない測定行をスキップしました",
			slog.String("sensor_uuid", sensorUUID.String()),
			slog.Int("parsed", result.Parsed),
			slog.Int("skipped", result.Skipped),
			slog.String("error", firstSkip.Error()),
		)
	}
	return result, nil
}

// post はレートリミッタを通してJSONをPOSTする。
// sessionIDが空でなければセッションクッキーを付与する。
func (c *Client) post(ctx context.Context, endpoint string, body []byte, sessionID string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("レートリミッタ待機に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sessionID})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewTransportError("プロバイダへのHTTPリクエスト", err)
	}
	return resp, nil
}

func parseRowTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range rowTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
