package registry

import (
	"fmt"
	"strings"
)

// Role is the on-chain node role, a uint8 on the wire.
type Role uint8

const (
	RoleBlockProducer Role = iota
	RoleMiner
)

func (r Role) String() string {
	switch r {
	case RoleBlockProducer:
		return "block-producer"
	case RoleMiner:
		return "miner"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ParseRole maps operator-facing role names to the wire enum.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "bp", "block-producer", "blockproducer":
		return RoleBlockProducer, nil
	case "miner":
		return RoleMiner, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}
