package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"GuardTrack/internal/model/dto"
	pkgerrors "GuardTrack/pkg/errors"
)

// Delivery 一次投递的结果
type Delivery struct {
	// Duplicate 服务端把这次投递识别成重复并幂等吸收
	Duplicate bool
}

// Transport 把队列条目送达服务端
type Transport interface {
	Deliver(ctx context.Context, item dto.SyncActionRequest) (Delivery, error)
}

// PermanentError 业务性拒绝，重试不可能成功，队列应当立即丢弃
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent delivery failure: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// IsPermanent 判断投递失败是否不可重试
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

// HTTPTransport 通过 POST /v1/sync/actions 投递，携带 guard JWT
type HTTPTransport struct {
	baseURL string
	token   string
	client  *client.Client
}

// NewHTTPTransport timeout 约束单次请求的全程耗时
func NewHTTPTransport(baseURL, token string, timeout time.Duration) (*HTTPTransport, error) {
	c, err := client.NewClient(
		client.WithDialTimeout(timeout),
		client.WithClientReadTimeout(timeout),
	)
	if err != nil {
		return nil, err
	}
	return &HTTPTransport{baseURL: baseURL, token: token, client: c}, nil
}

// envelope 服务端统一应答格式
type envelope struct {
	Data dto.SyncActionData `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Deliver 网络错误和 5xx 可重试；带业务错误码的 4xx 包成 PermanentError
func (t *HTTPTransport) Deliver(ctx context.Context, item dto.SyncActionRequest) (Delivery, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return Delivery{}, &PermanentError{Err: err}
	}

	req := &protocol.Request{}
	res := &protocol.Response{}
	req.SetMethod(consts.MethodPost)
	req.SetRequestURI(t.baseURL + "/v1/sync/actions")
	req.SetBody(body)
	req.Header.SetContentTypeBytes([]byte("application/json"))
	req.Header.Set("Authorization", "Bearer "+t.token)

	if err := t.client.Do(ctx, req, res); err != nil {
		return Delivery{}, err
	}

	status := res.StatusCode()
	switch {
	case status >= 200 && status < 300:
		var env envelope
		if err := json.Unmarshal(res.Body(), &env); err != nil {
			return Delivery{}, err
		}
		return Delivery{Duplicate: env.Data.Duplicate}, nil
	case status == consts.StatusTooManyRequests:
		// 限流不是业务拒绝，等窗口过去重试
		return Delivery{}, pkgerrors.SyncFailure
	case status >= 400 && status < 500:
		var env errorEnvelope
		if err := json.Unmarshal(res.Body(), &env); err != nil {
			return Delivery{}, &PermanentError{Err: pkgerrors.SyncFailure}
		}
		return Delivery{}, &PermanentError{Err: pkgerrors.Get(env.Error.Code)}
	default:
		return Delivery{}, pkgerrors.SyncFailure
	}
}
