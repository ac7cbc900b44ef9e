package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
)

// OPCUADialer opens anonymous, unsecured OPC UA sessions.
type OPCUADialer struct {
	RequestTimeout time.Duration
	// MaxAge is the oldest cached value the server may return.
	MaxAge time.Duration
}

func (d OPCUADialer) Dial(ctx context.Context, endpoint string) (Session, error) {
	opts := []opcua.Option{
		opcua.SecurityMode(ua.MessageSecurityModeNone),
		opcua.SecurityPolicy(ua.SecurityPolicyURINone),
		opcua.AuthAnonymous(),
		opcua.AutoReconnect(false),
	}
	if d.RequestTimeout > 0 {
		opts = append(opts, opcua.RequestTimeout(d.RequestTimeout))
	}
	c, err := opcua.NewClient(endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("opcua client %s: %w", endpoint, err)
	}
	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("opcua connect %s: %w", endpoint, err)
	}
	return &opcuaSession{client: c, maxAge: d.MaxAge}, nil
}

type opcuaSession struct {
	client *opcua.Client
	maxAge time.Duration
}

func nodeID(n NodeID) *ua.NodeID {
	return ua.NewStringNodeID(n.Namespace, n.Name)
}

func (s *opcuaSession) Read(ctx context.Context, nodes []NodeID) ([]Value, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	req := &ua.ReadRequest{
		MaxAge:             float64(s.maxAge.Milliseconds()),
		TimestampsToReturn: ua.TimestampsToReturnBoth,
		NodesToRead:        make([]*ua.ReadValueID, len(nodes)),
	}
	for i, n := range nodes {
		req.NodesToRead[i] = &ua.ReadValueID{NodeID: nodeID(n), AttributeID: ua.AttributeIDValue}
	}
	resp, err := s.client.Read(ctx, req)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Results) != len(nodes) {
		return nil, fmt.Errorf("%w: %d results for %d nodes", ErrDecode, len(resp.Results), len(nodes))
	}
	out := make([]Value, len(nodes))
	for i, dv := range resp.Results {
		out[i] = fromDataValue(dv)
	}
	return out, nil
}

// fromDataValue is the only place wire variants are inspected.
func fromDataValue(dv *ua.DataValue) Value {
	if dv == nil {
		return Empty("no value")
	}
	if dv.Status != ua.StatusOK {
		return Empty(dv.Status.Error())
	}
	if dv.Value == nil {
		return Empty("null variant")
	}
	switch v := dv.Value.Value().(type) {
	case float32:
		return Float(float64(v))
	case float64:
		return Float(v)
	case bool:
		return Bool(v)
	case int16:
		return Float(float64(v))
	case int32:
		return Float(float64(v))
	case int64:
		return Float(float64(v))
	case uint16:
		return Float(float64(v))
	case uint32:
		return Float(float64(v))
	case uint64:
		return Float(float64(v))
	}
	return Empty(fmt.Sprintf("unsupported variant %T", dv.Value.Value()))
}

func (s *opcuaSession) Write(ctx context.Context, values []WriteValue) error {
	if err := s.alive(); err != nil {
		return err
	}
	req := &ua.WriteRequest{NodesToWrite: make([]*ua.WriteValue, 0, len(values))}
	for _, w := range values {
		variant, err := toVariant(w.Value)
		if err != nil {
			return fmt.Errorf("write %s: %w", w.Node, err)
		}
		req.NodesToWrite = append(req.NodesToWrite, &ua.WriteValue{
			NodeID:      nodeID(w.Node),
			AttributeID: ua.AttributeIDValue,
			Value: &ua.DataValue{
				EncodingMask: ua.DataValueValue,
				Value:        variant,
			},
		})
	}
	resp, err := s.client.Write(ctx, req)
	if err != nil {
		return classify(err)
	}
	var errs []error
	for i, code := range resp.Results {
		if code != ua.StatusOK && i < len(values) {
			errs = append(errs, fmt.Errorf("write %s: %w", values[i].Node, classify(code)))
		}
	}
	return errors.Join(errs...)
}

// The plant server stores single-precision floats.
func toVariant(v Value) (*ua.Variant, error) {
	switch v.Kind() {
	case KindFloat:
		return ua.NewVariant(float32(v.f))
	case KindBool:
		return ua.NewVariant(v.b)
	}
	return nil, fmt.Errorf("%w: cannot write %s", ErrDecode, v)
}

func (s *opcuaSession) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

func (s *opcuaSession) alive() error {
	if st := s.client.State(); st != opcua.Connected {
		return fmt.Errorf("%w: client %v", ErrSessionLost, st)
	}
	return nil
}

var fatalStatus = map[ua.StatusCode]bool{
	ua.StatusBadSessionIDInvalid:       true,
	ua.StatusBadSessionClosed:          true,
	ua.StatusBadSessionNotActivated:    true,
	ua.StatusBadSecureChannelIDInvalid: true,
	ua.StatusBadSecureChannelClosed:    true,
	ua.StatusBadConnectionClosed:       true,
	ua.StatusBadServerNotConnected:     true,
	ua.StatusBadCommunicationError:     true,
}

// classify tags session-level status codes with ErrSessionLost.
func classify(err error) error {
	var code ua.StatusCode
	if errors.As(err, &code) && fatalStatus[code] {
		return fmt.Errorf("%w: %v", ErrSessionLost, err)
	}
	return err
}
