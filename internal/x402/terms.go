package x402

import (
	"fmt"
	"strconv"
)

// NetworkTerms is one enabled network from configuration: where payment
// for it must be sent. A network is enabled iff its PayTo is set.
type NetworkTerms struct {
	Network Network
	PayTo   string
}

// TermsConfig is the configuration slice the acceptance set is built
// from. Amount is the top-up cost in the asset's smallest units, shared
// across all networks.
type TermsConfig struct {
	Amount      int64
	Asset       string
	Resource    string
	Description string
	Networks    []NetworkTerms
}

// maxTimeoutSeconds is how long a client-constructed payment stays
// acceptable to the facilitator.
const maxTimeoutSeconds = 60

// BuildAcceptanceSet turns configuration into the ordered list of payment
// descriptors the server accepts. Order follows the configured network
// order and expresses preference; verification accepts any match.
//
// The set is built once at startup and never mutated. An empty result or
// an unresolvable (network, asset) pair is returned as an error the
// caller must treat as fatal.
func BuildAcceptanceSet(cfg TermsConfig) ([]PaymentRequirements, error) {
	if cfg.Amount <= 0 {
		return nil, fmt.Errorf("top-up cost must be positive, got %d", cfg.Amount)
	}

	var set []PaymentRequirements
	for _, nt := range cfg.Networks {
		if nt.PayTo == "" {
			continue
		}
		kind, err := nt.Network.Kind()
		if err != nil {
			return nil, err
		}
		if err := ValidateAddress(nt.Network, nt.PayTo); err != nil {
			return nil, err
		}
		tok, err := ResolveToken(nt.Network, cfg.Asset)
		if err != nil {
			return nil, err
		}

		base := PaymentRequirements{
			Scheme:            "exact",
			Network:           nt.Network.String(),
			MaxAmountRequired: strconv.FormatInt(cfg.Amount, 10),
			Resource:          cfg.Resource,
			Description:       cfg.Description,
			MimeType:          "application/json",
			PayTo:             nt.PayTo,
			MaxTimeoutSeconds: maxTimeoutSeconds,
			Asset:             tok.Address,
		}

		switch kind {
		case KindSolana:
			set = append(set, base)
		case KindEVM:
			// EVM tokens settle through either EIP-3009
			// transferWithAuthorization or an EIP-2612 permit; both
			// are offered as alternatives for the same amount/payee.
			for _, auth := range []string{"eip3009", "eip2612"} {
				d := base
				d.Extra = map[string]string{
					"name":          tok.Name,
					"version":       tok.Version,
					"authorization": auth,
				}
				set = append(set, d)
			}
		}
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("no payment networks enabled: at least one receiving address is required")
	}
	return set, nil
}
