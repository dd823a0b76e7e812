package orders

import (
	"encoding/binary"
	"strings"

	"github.com/google/uuid"
	hashids "github.com/speps/go-hashids/v2"
)

// Unambiguous alphabet: no 0/O, 1/I/L.
const orderNumberAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// OrderNumberGenerator mints public order references like EMB-7KQ2MX9R4T.
// The salt keeps references unguessable; random uuid input keeps them free
// of wall-clock or sequence information.
type OrderNumberGenerator struct {
	h *hashids.HashID
}

func NewOrderNumberGenerator(salt string) (*OrderNumberGenerator, error) {
	h, err := hashids.NewWithData(&hashids.HashIDData{
		Salt:      salt,
		MinLength: 10,
		Alphabet:  orderNumberAlphabet,
	})
	if err != nil {
		return nil, err
	}
	return &OrderNumberGenerator{h: h}, nil
}

func (g *OrderNumberGenerator) Generate(userID int64) string {
	id := uuid.New()
	nonceA := int64(binary.BigEndian.Uint32(id[0:4]))
	nonceB := int64(binary.BigEndian.Uint32(id[4:8]))

	code, err := g.h.EncodeInt64([]int64{userID, nonceA, nonceB})
	if err != nil {
		// EncodeInt64 only fails on negative input; fall back to raw uuid.
		return "EMB-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:10])
	}

	return "EMB-" + strings.ToUpper(code)
}
