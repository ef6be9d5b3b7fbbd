package tools

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hrygo/mailsense/plugin/ai/cache"
	"github.com/hrygo/mailsense/store"
)

// DomainRisk is the cached per-domain verdict. It is keyed by domain and
// shared across users: reputation does not depend on who asked.
// Recomputing and overwriting with a fresher value is always safe.
type DomainRisk struct {
	Domain     string         `json:"domain"`
	Score      float64        `json:"score"` // 0 benign .. 1 hostile
	Signals    map[string]any `json:"signals"`
	ComputedAt int64          `json:"computed_at"`
}

var (
	suspiciousTLDs = map[string]bool{
		"zip": true, "mov": true, "top": true, "xyz": true,
		"click": true, "loan": true, "work": true, "gq": true, "tk": true,
	}
	urgencyWords = []string{
		"verify your account", "suspended", "act now", "urgent",
		"password expire", "unusual activity", "confirm your identity",
		"wire transfer", "gift card",
	}
	ipHostPattern = regexp.MustCompile(`https?://\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)
	linkPattern   = regexp.MustCompile(`https?://[^\s"'<>]+`)
)

// SecurityScanTool flags suspicious senders in the requested window. The
// per-domain verdict is expensive relative to its churn, so the tool
// consults the shared domain_risk cache before recomputing and writes
// back on miss.
type SecurityScanTool struct {
	store EmailLister
	cache cache.CacheService
	trust TrustedDomains
}

// TrustedDomains reports domains the user has vouched for; risk warnings
// for those are suppressed. Backed by the learned-exception service.
type TrustedDomains interface {
	IsTrustedDomain(ctx context.Context, userID, domain string) bool
}

// NewSecurityScanTool creates the security scan tool. cacheService and
// trust may be nil; both degrade gracefully.
func NewSecurityScanTool(s EmailLister, cacheService cache.CacheService, trust TrustedDomains) *SecurityScanTool {
	return &SecurityScanTool{store: s, cache: cacheService, trust: trust}
}

func (t *SecurityScanTool) Name() string {
	return "security_scan"
}

func (t *SecurityScanTool) Description() string {
	return "Scans recent mail for phishing and spoofing signals, grouped by sender domain."
}

func (t *SecurityScanTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"time_window_days": map[string]any{"type": "integer", "description": "restrict to the last N days"},
		},
	}
}

func (t *SecurityScanTool) Run(ctx context.Context, inv *Invocation) (*Result, error) {
	window := inv.TimeWindowDays
	if window <= 0 {
		window = 7
	}
	after := time.Now().AddDate(0, 0, -window).Unix()
	limit := 500

	emails, err := t.store.ListEmails(ctx, &store.FindEmail{
		UserID:        &inv.UserID,
		ReceivedAfter: &after,
		Limit:         &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("security scan failed: %w", err)
	}

	byDomain := make(map[string][]*store.Email)
	for _, e := range emails {
		if e.SenderDomain == "" {
			continue
		}
		byDomain[e.SenderDomain] = append(byDomain[e.SenderDomain], e)
	}

	type finding struct {
		Domain   string         `json:"domain"`
		Score    float64        `json:"score"`
		Signals  map[string]any `json:"signals"`
		EmailIDs []int32        `json:"email_ids"`
		Subjects []string       `json:"subjects"`
	}

	var findings []finding
	scanned := 0
	for domain, messages := range byDomain {
		scanned += len(messages)
		if t.trust != nil && t.trust.IsTrustedDomain(ctx, inv.UserID, domain) {
			continue
		}

		risk := t.domainRisk(ctx, domain, messages)
		if risk.Score < 0.5 {
			continue
		}

		f := finding{Domain: domain, Score: risk.Score, Signals: risk.Signals}
		for _, e := range messages {
			f.EmailIDs = append(f.EmailIDs, e.ID)
			f.Subjects = append(f.Subjects, e.Subject)
		}
		findings = append(findings, f)
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].Score > findings[j].Score })

	return &Result{
		Status:  StatusSuccess,
		Matches: len(findings),
		Payload: map[string]any{
			"scanned":          scanned,
			"domains_scanned":  len(byDomain),
			"findings":         findings,
			"time_window_days": window,
		},
	}, nil
}

// domainRisk returns the cached verdict for a domain, recomputing and
// writing back on miss. The content-derived signals are folded in on top
// of the cached domain-shape score so fresh messages still count.
func (t *SecurityScanTool) domainRisk(ctx context.Context, domain string, messages []*store.Email) *DomainRisk {
	var risk DomainRisk
	if t.cache != nil && t.cache.GetJSON(ctx, cache.KindDomainRisk, domain, &risk) {
		return t.applyContentSignals(&risk, messages)
	}

	risk = DomainRisk{
		Domain:     domain,
		Signals:    map[string]any{},
		ComputedAt: time.Now().Unix(),
	}

	// Domain-shape signals: cacheable, user-independent.
	labels := strings.Split(domain, ".")
	tld := labels[len(labels)-1]
	if suspiciousTLDs[tld] {
		risk.Score += 0.4
		risk.Signals["suspicious_tld"] = tld
	}
	if len(labels) > 3 {
		risk.Score += 0.2
		risk.Signals["deep_subdomain"] = domain
	}
	if strings.Count(domain, "-") >= 2 {
		risk.Score += 0.2
		risk.Signals["hyphenated_domain"] = domain
	}
	if looksLikeHomoglyph(domain) {
		risk.Score += 0.5
		risk.Signals["lookalike_domain"] = domain
	}
	if risk.Score > 1 {
		risk.Score = 1
	}

	if t.cache != nil {
		_ = t.cache.SetJSON(ctx, cache.KindDomainRisk, domain, &risk, 0)
	}
	return t.applyContentSignals(&risk, messages)
}

// applyContentSignals layers message-content signals over the domain
// verdict. These depend on the concrete messages, so they are computed
// per run and never cached.
func (t *SecurityScanTool) applyContentSignals(risk *DomainRisk, messages []*store.Email) *DomainRisk {
	out := &DomainRisk{
		Domain:     risk.Domain,
		Score:      risk.Score,
		ComputedAt: risk.ComputedAt,
		Signals:    make(map[string]any, len(risk.Signals)+2),
	}
	for k, v := range risk.Signals {
		out.Signals[k] = v
	}

	for _, e := range messages {
		text := strings.ToLower(e.Subject + " " + e.Body)
		for _, w := range urgencyWords {
			if strings.Contains(text, w) {
				out.Score += 0.3
				out.Signals["urgency_language"] = w
				break
			}
		}
		if ipHostPattern.MatchString(e.Body) {
			out.Score += 0.4
			out.Signals["ip_literal_link"] = true
		}
		if mismatched := mismatchedLinkHost(e.Body, e.SenderDomain); mismatched != "" {
			out.Score += 0.2
			out.Signals["link_host_mismatch"] = mismatched
		}
	}
	if out.Score > 1 {
		out.Score = 1
	}
	return out
}

// looksLikeHomoglyph flags digit-for-letter substitutions in well-known
// brand names (paypa1.com, g00gle.net).
func looksLikeHomoglyph(domain string) bool {
	deleet := strings.NewReplacer("0", "o", "1", "l", "3", "e", "5", "s").Replace(domain)
	if deleet == domain {
		return false
	}
	for _, brand := range []string{"paypal", "google", "amazon", "apple", "microsoft", "netflix"} {
		if strings.Contains(deleet, brand) && !strings.Contains(domain, brand) {
			return true
		}
	}
	return false
}

// mismatchedLinkHost returns the first link host that shares no suffix
// with the sender domain, or "".
func mismatchedLinkHost(body, senderDomain string) string {
	if senderDomain == "" {
		return ""
	}
	for _, link := range linkPattern.FindAllString(body, 10) {
		u, err := url.Parse(link)
		if err != nil || u.Hostname() == "" {
			continue
		}
		host := strings.ToLower(u.Hostname())
		if !strings.HasSuffix(host, senderDomain) && !strings.HasSuffix(senderDomain, host) {
			return host
		}
	}
	return ""
}
