package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"GuardTrack/internal/automation"
	"GuardTrack/internal/geofence"
	"GuardTrack/internal/model"
	"GuardTrack/internal/model/dto"
	pkgerrors "GuardTrack/pkg/errors"
	"GuardTrack/pkg/geo"
)

// API 设备侧的服务端配置客户端：拉围栏、拉规则、探测连通性。
// 班次动作不走这里，全部经离线队列投递。

type API struct {
	baseURL string
	token   string
	client  *client.Client
}

func NewAPI(baseURL, token string, timeout time.Duration) (*API, error) {
	c, err := client.NewClient(
		client.WithDialTimeout(timeout),
		client.WithClientReadTimeout(timeout),
	)
	if err != nil {
		return nil, err
	}
	return &API{baseURL: baseURL, token: token, client: c}, nil
}

func (a *API) get(ctx context.Context, path string, out interface{}) error {
	req := &protocol.Request{}
	res := &protocol.Response{}
	req.SetMethod(consts.MethodGet)
	req.SetRequestURI(a.baseURL + path)
	req.Header.Set("Authorization", "Bearer "+a.token)

	if err := a.client.Do(ctx, req, res); err != nil {
		return err
	}
	if res.StatusCode() != consts.StatusOK {
		return fmt.Errorf("%w: GET %s returned %d", pkgerrors.SyncFailure, path, res.StatusCode())
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(res.Body(), out)
}

// Ping 连通性探测
func (a *API) Ping(ctx context.Context) error {
	return a.get(ctx, "/ping", nil)
}

// FetchZones 拉取启用中的围栏配置并换算成引擎快照
func (a *API) FetchZones(ctx context.Context) ([]geofence.Zone, error) {
	var env struct {
		Data []dto.ZoneItem `json:"data"`
	}
	if err := a.get(ctx, "/v1/geofences", &env); err != nil {
		return nil, fmt.Errorf("failed to fetch zones: %w", err)
	}

	zones := make([]geofence.Zone, 0, len(env.Data))
	for _, item := range env.Data {
		id, err := strconv.ParseInt(item.ID, 10, 64)
		if err != nil {
			continue
		}
		zones = append(zones, geofence.Zone{
			ID:           id,
			Name:         item.Name,
			Center:       geo.Location{Latitude: item.Latitude, Longitude: item.Longitude},
			RadiusMeters: item.RadiusMeters,
			Kind:         model.ZoneKind(item.Kind),
			Active:       item.Active,
		})
	}
	return zones, nil
}

// FetchRules 拉取启用中的自动化规则
func (a *API) FetchRules(ctx context.Context) ([]automation.Rule, error) {
	var env struct {
		Data []dto.RuleItem `json:"data"`
	}
	if err := a.get(ctx, "/v1/geofences/rules", &env); err != nil {
		return nil, fmt.Errorf("failed to fetch rules: %w", err)
	}

	rules := make([]automation.Rule, 0, len(env.Data))
	for _, item := range env.Data {
		id, err := strconv.ParseInt(item.ID, 10, 64)
		if err != nil {
			continue
		}
		zoneID, err := strconv.ParseInt(item.ZoneID, 10, 64)
		if err != nil {
			continue
		}

		rule := automation.Rule{
			ID:                  id,
			ZoneID:              zoneID,
			Action:              model.AutomationAction(item.Action),
			MinDwellMs:          item.Conditions.MinDwellMs,
			MaxAccuracyM:        item.Conditions.MaxAccuracyM,
			TimeOfDayStart:      item.Conditions.TimeOfDayStart,
			TimeOfDayEnd:        item.Conditions.TimeOfDayEnd,
			RequireConfirmation: item.RequireConfirmation,
			Active:              item.Active,
		}
		for _, d := range item.Conditions.DaysOfWeek {
			if d >= 0 && d <= 6 {
				rule.DaysOfWeek = append(rule.DaysOfWeek, time.Weekday(d))
			}
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
