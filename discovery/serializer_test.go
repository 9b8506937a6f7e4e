package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, s Serializer[map[string]int], x *ServiceInstance[map[string]int]) *ServiceInstance[map[string]int] {
	t.Helper()
	data, err := s.Serialize(x)
	require.NoError(t, err)
	decoded, err := s.Deserialize(data)
	require.NoError(t, err)
	return decoded
}

func TestRoundTripFullRecord(t *testing.T) {
	payload := map[string]int{"v": 1}
	x, err := NewServiceInstance("svc-a", "123", "10.0.0.1", intPtr(8080), nil, &payload, 1000)
	require.NoError(t, err)

	for _, format := range []string{"json", "msgpack"} {
		t.Run(format, func(t *testing.T) {
			s, err := NewSerializer[map[string]int](format)
			require.NoError(t, err)

			decoded := roundTrip(t, s, x)
			assert.True(t, x.Equal(decoded), "decode(encode(x)) = %s, want %s", decoded, x)

			// sslPort 在编码前后都保持未设置
			_, ok := decoded.SSLPort()
			assert.False(t, ok)
		})
	}
}

func TestRoundTripAbsentOptionalFields(t *testing.T) {
	x, err := NewServiceInstance[map[string]int]("svc-a", "1", "", nil, nil, nil, 0)
	require.NoError(t, err)

	for _, format := range []string{"json", "msgpack"} {
		t.Run(format, func(t *testing.T) {
			s, err := NewSerializer[map[string]int](format)
			require.NoError(t, err)

			decoded := roundTrip(t, s, x)
			assert.True(t, x.Equal(decoded))

			assert.Equal(t, "", decoded.Address())
			_, ok := decoded.Port()
			assert.False(t, ok)
			_, ok = decoded.Payload()
			assert.False(t, ok)
		})
	}
}

func TestJSONOmitsAbsentFields(t *testing.T) {
	x, err := NewServiceInstance[map[string]int]("svc-a", "1", "", nil, nil, nil, 0)
	require.NoError(t, err)

	s := &JSONSerializer[map[string]int]{}
	data, err := s.Serialize(x)
	require.NoError(t, err)

	// 未设置的可选字段不出现在线格式中
	assert.NotContains(t, string(data), "port")
	assert.NotContains(t, string(data), "address")
	assert.NotContains(t, string(data), "payload")
	assert.Contains(t, string(data), `"name":"svc-a"`)
	assert.Contains(t, string(data), `"id":"1"`)
}

func TestDeserializeRejectsMissingRequiredFields(t *testing.T) {
	s := &JSONSerializer[map[string]int]{}

	_, err := s.Deserialize([]byte(`{"id":"1","registrationTimeUTC":0}`))
	assert.ErrorIs(t, err, ErrNameRequired)

	_, err = s.Deserialize([]byte(`{"name":"svc-a","registrationTimeUTC":0}`))
	assert.ErrorIs(t, err, ErrIDRequired)
}

func TestDeserializeInvalidData(t *testing.T) {
	s := &JSONSerializer[map[string]int]{}
	_, err := s.Deserialize([]byte("{not json"))
	assert.Error(t, err)

	m := &MsgpackSerializer[map[string]int]{}
	_, err = m.Deserialize([]byte{0xc1}) // msgpack 保留字节
	assert.Error(t, err)
}

func TestSerializeNilInstance(t *testing.T) {
	s := &JSONSerializer[map[string]int]{}
	_, err := s.Serialize(nil)
	assert.ErrorIs(t, err, ErrNilInstance)

	m := &MsgpackSerializer[map[string]int]{}
	_, err = m.Serialize(nil)
	assert.ErrorIs(t, err, ErrNilInstance)
}

func TestNewSerializer(t *testing.T) {
	s, err := NewSerializer[map[string]int]("")
	require.NoError(t, err)
	assert.IsType(t, &JSONSerializer[map[string]int]{}, s)

	s, err = NewSerializer[map[string]int]("msgpack")
	require.NoError(t, err)
	assert.IsType(t, &MsgpackSerializer[map[string]int]{}, s)

	_, err = NewSerializer[map[string]int]("xml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRoundTripStructPayload(t *testing.T) {
	payload := meta{Weight: 5, Zone: "cn-east"}
	x, err := NewServiceInstance("svc-a", "id-1", "10.0.0.1", nil, intPtr(8443), &payload, 42)
	require.NoError(t, err)

	s := &JSONSerializer[meta]{}
	data, err := s.Serialize(x)
	require.NoError(t, err)
	decoded, err := s.Deserialize(data)
	require.NoError(t, err)

	assert.True(t, x.Equal(decoded))
	got, ok := decoded.Payload()
	require.True(t, ok)
	assert.Equal(t, payload, got)
}
