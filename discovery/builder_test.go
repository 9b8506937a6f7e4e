package discovery

import (
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/beacon/xerrors"
)

func fixedEnumerator(addrs ...string) Enumerator {
	return func() ([]net.IP, error) {
		ips := make([]net.IP, 0, len(addrs))
		for _, a := range addrs {
			ips = append(ips, net.ParseIP(a))
		}
		return ips, nil
	}
}

func TestBuilderDefaults(t *testing.T) {
	b1, err := NewBuilder[meta]()
	require.NoError(t, err)
	b2, err := NewBuilder[meta]()
	require.NoError(t, err)

	i1, err := b1.Name("svc-a").Build()
	require.NoError(t, err)
	i2, err := b2.Name("svc-a").Build()
	require.NoError(t, err)

	// 两次创建的默认 ID 不同，且均为规范 UUID 文本形式
	assert.NotEqual(t, i1.ID(), i2.ID())
	_, err = uuid.Parse(i1.ID())
	assert.NoError(t, err)
	_, err = uuid.Parse(i2.ID())
	assert.NoError(t, err)

	// 注册时间戳单调不减
	assert.GreaterOrEqual(t, i2.RegistrationTimeUTC(), i1.RegistrationTimeUTC())
	assert.Positive(t, i1.RegistrationTimeUTC())
}

func TestBuildMinimalValidRecord(t *testing.T) {
	b, err := NewBuilderWith[meta](fixedEnumerator("10.0.0.1", "10.0.0.2"))
	require.NoError(t, err)

	instance, err := b.Name("svc-a").Build()
	require.NoError(t, err)

	// 地址取枚举结果的第一个
	assert.Equal(t, "10.0.0.1", instance.Address())

	_, ok := instance.Port()
	assert.False(t, ok)
	_, ok = instance.SSLPort()
	assert.False(t, ok)
	_, ok = instance.Payload()
	assert.False(t, ok)
}

func TestBuildMissingRequiredFields(t *testing.T) {
	b, err := NewBuilderWith[meta](fixedEnumerator("10.0.0.1"))
	require.NoError(t, err)

	// name 从未设置
	_, err = b.Build()
	assert.ErrorIs(t, err, ErrNameRequired)

	// id 被显式清空
	_, err = b.Name("svc-a").ID("").Build()
	assert.ErrorIs(t, err, ErrIDRequired)
}

func TestBuilderEnumeratorFailure(t *testing.T) {
	cause := xerrors.New("interface scan failed")
	failing := func() ([]net.IP, error) {
		return nil, cause
	}

	_, err := NewBuilderWith[meta](failing)
	assert.ErrorIs(t, err, ErrEnumerateAddresses)
	assert.ErrorIs(t, err, cause)
}

func TestBuilderEmptyEnumeration(t *testing.T) {
	b, err := NewBuilderWith[meta](fixedEnumerator())
	require.NoError(t, err)

	instance, err := b.Name("svc-a").Build()
	require.NoError(t, err)
	assert.Equal(t, "", instance.Address())
}

func TestBuilderFluentOverrides(t *testing.T) {
	b, err := NewBuilderWith[meta](fixedEnumerator("10.0.0.1"))
	require.NoError(t, err)

	instance, err := b.
		Name("svc-a").
		ID("instance-42").
		Address("192.168.1.5").
		Port(8080).
		SSLPort(8443).
		Payload(meta{Weight: 3, Zone: "cn-north"}).
		RegistrationTimeUTC(12345).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "svc-a", instance.Name())
	assert.Equal(t, "instance-42", instance.ID())
	assert.Equal(t, "192.168.1.5", instance.Address())
	port, _ := instance.Port()
	assert.Equal(t, 8080, port)
	sslPort, _ := instance.SSLPort()
	assert.Equal(t, 8443, sslPort)
	payload, _ := instance.Payload()
	assert.Equal(t, meta{Weight: 3, Zone: "cn-north"}, payload)
	assert.EqualValues(t, 12345, instance.RegistrationTimeUTC())
}

func TestBuildReflectsCurrentState(t *testing.T) {
	b, err := NewBuilderWith[meta](fixedEnumerator("10.0.0.1"))
	require.NoError(t, err)
	b.Name("svc-a").ID("id-1").RegistrationTimeUTC(1000)

	first, err := b.Build()
	require.NoError(t, err)

	// Build 之后继续修改 Builder，不影响已产出的记录
	b.Port(9090).Payload(meta{Weight: 7})
	second, err := b.Build()
	require.NoError(t, err)

	_, ok := first.Port()
	assert.False(t, ok)
	port, ok := second.Port()
	require.True(t, ok)
	assert.Equal(t, 9090, port)

	assert.False(t, first.Equal(second))
}

func TestLocalAddressesExcludesLoopback(t *testing.T) {
	ips, err := LocalAddresses()
	if err != nil {
		t.Skipf("interface enumeration unavailable: %v", err)
	}
	for _, ip := range ips {
		assert.False(t, ip.IsLoopback(), "loopback address %s should be excluded", ip)
		assert.True(t, ip.IsGlobalUnicast(), "address %s should be global unicast", ip)
	}
}
