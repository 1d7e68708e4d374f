package services

import "strings"

// PaymentMethods is the recognized set of payment rails, matched case-insensitively.
type PaymentMethods struct {
	ordered   []string
	canonical map[string]string
}

func NewPaymentMethods(methods []string) *PaymentMethods {
	p := &PaymentMethods{canonical: make(map[string]string, len(methods))}
	for _, method := range methods {
		key := strings.ToLower(strings.TrimSpace(method))
		if key == "" {
			continue
		}
		if _, seen := p.canonical[key]; seen {
			continue
		}
		p.canonical[key] = strings.TrimSpace(method)
		p.ordered = append(p.ordered, strings.TrimSpace(method))
	}
	return p
}

// Canonical returns the configured spelling of method.
func (p *PaymentMethods) Canonical(method string) (string, bool) {
	canonical, ok := p.canonical[strings.ToLower(strings.TrimSpace(method))]
	return canonical, ok
}

func (p *PaymentMethods) All() []string {
	return append([]string(nil), p.ordered...)
}
