package certificate

import (
	"errors"
	"math/big"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("certificate: not found")
	ErrInvalid  = errors.New("certificate: invalid certificate")
)

// Energy is the certified volume in Wh, split into the part visible on chain
// and the part held privately.
type Energy struct {
	PublicVolume  *big.Int
	PrivateVolume *big.Int
}

// Total returns public + private volume.
func (e Energy) Total() *big.Int {
	total := new(big.Int)
	if e.PublicVolume != nil {
		total.Add(total, e.PublicVolume)
	}
	if e.PrivateVolume != nil {
		total.Add(total, e.PrivateVolume)
	}
	return total
}

// Certificate is an on-chain certificate minted by the issuer.
type Certificate struct {
	ID                     int64
	DeviceID               string
	GenerationStartTime    time.Time
	GenerationEndTime      time.Time
	CreationTime           time.Time
	CreationBlockHash      string
	TxHash                 string
	IssuedPrivately        bool
	Owner                  string
	Energy                 Energy
	CertificationRequestID int64
}

// Validate checks the fields the issuer must have provided.
func (c *Certificate) Validate() error {
	switch {
	case c == nil:
		return ErrInvalid
	case c.ID <= 0:
		return errors.Join(ErrInvalid, errors.New("id must be positive"))
	case c.DeviceID == "":
		return errors.Join(ErrInvalid, errors.New("device id required"))
	case c.Owner == "":
		return errors.Join(ErrInvalid, errors.New("owner required"))
	case !c.GenerationStartTime.Before(c.GenerationEndTime):
		return errors.Join(ErrInvalid, errors.New("generation period inverted"))
	}
	return nil
}

// IsOwnedBy reports whether address holds the certificate.
func (c *Certificate) IsOwnedBy(address string) bool {
	return address != "" && strings.EqualFold(c.Owner, address)
}

// VisibleEnergy returns the energy as seen by a caller. The private volume is
// zeroed unless the caller owns the certificate or is privileged.
func (c *Certificate) VisibleEnergy(caller string, privileged bool) Energy {
	public := new(big.Int)
	if c.Energy.PublicVolume != nil {
		public.Set(c.Energy.PublicVolume)
	}
	private := new(big.Int)
	if c.Energy.PrivateVolume != nil && (privileged || c.IsOwnedBy(caller)) {
		private.Set(c.Energy.PrivateVolume)
	}
	return Energy{PublicVolume: public, PrivateVolume: private}
}
