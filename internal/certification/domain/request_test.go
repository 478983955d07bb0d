package certification

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "0xAbC0000000000000000000000000000000000001"

func validParams() NewRequestParams {
	return NewRequestParams{
		DeviceID: "device-1",
		Owner:    owner,
		FromTime: time.Unix(1_600_000_000, 0),
		ToTime:   time.Unix(1_600_086_400, 0),
		Energy:   "1000000",
		Files:    []string{"file-a", " ", "file-b"},
	}
}

func TestNewRequest(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	req, err := NewRequest(validParams(), now)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, req.Status())
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", req.Owner)
	assert.Equal(t, []string{"file-a", "file-b"}, req.Files)
	assert.Equal(t, "1000000", FormatEnergy(req.Energy))
	assert.Equal(t, now, req.CreatedAt)
}

func TestNewRequest_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*NewRequestParams)
		want   error
	}{
		{"missing device", func(p *NewRequestParams) { p.DeviceID = " " }, ErrInvalidDevice},
		{"bad owner", func(p *NewRequestParams) { p.Owner = "0x123" }, ErrInvalidOwner},
		{"owner without prefix", func(p *NewRequestParams) { p.Owner = owner[2:] + "00" }, ErrInvalidOwner},
		{"inverted period", func(p *NewRequestParams) { p.FromTime, p.ToTime = p.ToTime, p.FromTime }, ErrInvalidPeriod},
		{"empty period", func(p *NewRequestParams) { p.ToTime = p.FromTime }, ErrInvalidPeriod},
		{"zero energy", func(p *NewRequestParams) { p.Energy = "0" }, ErrInvalidEnergy},
		{"negative energy", func(p *NewRequestParams) { p.Energy = "-5" }, ErrInvalidEnergy},
		{"fractional energy", func(p *NewRequestParams) { p.Energy = "1.5" }, ErrInvalidEnergy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := validParams()
			tc.mutate(&params)
			_, err := NewRequest(params, time.Now())
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestParseEnergy_Large(t *testing.T) {
	energy, err := ParseEnergy("123456789012345678901234567890")
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", energy.String())
}

func TestApproveRevoke(t *testing.T) {
	now := time.Now()

	req, err := NewRequest(validParams(), now)
	require.NoError(t, err)
	require.NoError(t, req.Approve(now))
	assert.Equal(t, StatusApproved, req.Status())
	assert.ErrorIs(t, req.Approve(now), ErrAlreadyApproved)
	assert.ErrorIs(t, req.Revoke(now), ErrAlreadyApproved)
	assert.True(t, req.AwaitingIssuance())

	req, err = NewRequest(validParams(), now)
	require.NoError(t, err)
	require.NoError(t, req.Revoke(now))
	assert.Equal(t, StatusRevoked, req.Status())
	assert.ErrorIs(t, req.Revoke(now), ErrAlreadyRevoked)
	assert.ErrorIs(t, req.Approve(now), ErrAlreadyRevoked)
	assert.True(t, IsTransition(req.Approve(now)))
}

func TestOverlaps(t *testing.T) {
	base, err := NewRequest(validParams(), time.Now())
	require.NoError(t, err)

	adjacent := *base
	adjacent.FromTime = base.ToTime
	adjacent.ToTime = base.ToTime.Add(time.Hour)
	assert.False(t, base.Overlaps(&adjacent))

	inside := *base
	inside.FromTime = base.FromTime.Add(time.Hour)
	inside.ToTime = base.ToTime.Add(time.Hour)
	assert.True(t, base.Overlaps(&inside))

	otherDevice := inside
	otherDevice.DeviceID = "device-2"
	assert.False(t, base.Overlaps(&otherDevice))

	otherOwner := inside
	otherOwner.Owner = "0x0000000000000000000000000000000000000002"
	assert.False(t, base.Overlaps(&otherOwner))

	revoked := inside
	revoked.Revoked = true
	assert.False(t, base.Overlaps(&revoked))
}

func TestCertificateVolumes(t *testing.T) {
	req, err := NewRequest(validParams(), time.Now())
	require.NoError(t, err)

	public, private := req.CertificateVolumes()
	assert.Equal(t, 0, public.Cmp(big.NewInt(1_000_000)))
	assert.Equal(t, 0, private.Sign())

	req.IsPrivate = true
	public, private = req.CertificateVolumes()
	assert.Equal(t, 0, public.Sign())
	assert.Equal(t, 0, private.Cmp(big.NewInt(1_000_000)))

	private.SetInt64(1)
	assert.Equal(t, "1000000", req.Energy.String())
}

func TestListFilter(t *testing.T) {
	req, err := NewRequest(validParams(), time.Now())
	require.NoError(t, err)
	assert.True(t, ListFilter{}.Matches(req))
	assert.True(t, ListFilter{Owner: req.Owner, Status: StatusPending}.Matches(req))
	assert.False(t, ListFilter{Status: StatusApproved}.Matches(req))
	assert.False(t, ListFilter{DeviceID: "x"}.Matches(req))

	status, ok := ParseStatus("APPROVED")
	assert.True(t, ok)
	assert.Equal(t, StatusApproved, status)
	_, ok = ParseStatus("bogus")
	assert.False(t, ok)
}
