package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/dlogic/tagreport/internal/model"
)

// ZoneLister はゾーンハンドラーが必要とするリポジトリのインターフェース。
type ZoneLister interface {
	FindAll(ctx context.Context) ([]model.Zone, error)
	FindSensorUUIDs(ctx context.Context, zoneID int) ([]uuid.UUID, error)
}

// ZoneHandler はゾーン参照のHTTPハンドラー。
type ZoneHandler struct {
	zones ZoneLister
}

// NewZoneHandler はZoneHandlerを生成する。
func NewZoneHandler(zones ZoneLister) *ZoneHandler {
	return &ZoneHandler{zones: zones}
}

// zoneResponse はゾーン情報のAPIレスポンス。
type zoneResponse struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	SensorUUIDs []string `json:"sensor_uuids"`
}

// ListZones は全ゾーンとそのメンバーシップを返す。
// GET /api/zones
func (h *ZoneHandler) ListZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.zones.FindAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]zoneResponse, 0, len(zones))
	for _, zone := range zones {
		uuids, err := h.zones.FindSensorUUIDs(r.Context(), zone.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		members := make([]string, 0, len(uuids))
		for _, u := range uuids {
			members = append(members, u.String())
		}
		resp = append(resp, zoneResponse{ID: zone.ID, Name: zone.Name, SensorUUIDs: members})
	}
	writeJSON(w, http.StatusOK, resp)
}
