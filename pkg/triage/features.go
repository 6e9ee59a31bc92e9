package triage

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/stratowall/mailtriage/pkg/keywords"
)

// FeatureSchemaVersion identifies the adaptive feature layout. Bump whenever
// a feature is added, removed or reordered: a persisted classifier trained on
// a different schema must not be asked for predictions.
const FeatureSchemaVersion = 1

// Adaptive feature vector layout. Order is part of the schema.
const (
	attachmentDims = 15
	senderDims     = 8
	contentDims    = 7
	temporalDims   = 5
	contextDims    = 6

	// AdaptiveDims is the length of the full adaptive feature vector.
	AdaptiveDims = attachmentDims + senderDims + contentDims + temporalDims + contextDims

	// BaseDims is the length of the compact vector fed to the per-batch
	// anomaly detector (retrained every run, needs no schema continuity).
	BaseDims = 5
)

var (
	highRiskExts   = []string{".exe", ".scr", ".bat", ".cmd", ".com", ".pif", ".vbs", ".js"}
	mediumRiskExts = []string{".zip", ".rar", ".7z", ".doc", ".docx", ".xls", ".xlsx", ".pdf"}

	publicDomains   = []string{"gmail.com", "yahoo.com", "hotmail.com", "outlook.com"}
	corpDomainWords = []string{"company", "corp", "enterprise"}

	urgencyWords   = []string{"urgent", "asap", "immediate", "rush", "emergency"}
	financialWords = []string{"payment", "invoice", "bill", "money", "transfer", "account"}
	personalWords  = []string{"personal", "private", "confidential", "secret"}
	authorityWords = []string{"ceo", "manager", "director", "admin", "official"}

	socialLureWords   = []string{"confidential", "urgent", "invoice"}
	paymentLureWords  = []string{"payment", "bill", "receipt"}
	personalLureWords = []string{"personal", "private", "secret"}

	afterHoursTokens    = []string{"22:", "23:", "00:", "01:", "02:", "03:", "04:", "05:"}
	earlyMorningTokens  = []string{"06:", "07:", "08:"}
	businessHourTokens  = []string{"09:", "10:", "11:", "14:", "15:", "16:", "17:"}
	weekendTokens       = []string{"saturday", "sunday", "weekend"}
	dateTokens          = []string{"2024", "2025", ":"}
	highRiskDepartments = []string{"finance", "hr", "admin", "executive"}
)

// FeatureExtractor turns email records into fixed-length numeric vectors.
// It is stateless; the keyword snapshot is passed in so extraction stays a
// pure function of its inputs.
type FeatureExtractor struct{}

// NewFeatureExtractor returns a ready extractor.
func NewFeatureExtractor() *FeatureExtractor {
	return &FeatureExtractor{}
}

// Adaptive builds the full feature vector used by the adaptive classifier
// and the anomaly detector. Never fails: missing text fields contribute
// zeros.
func (fe *FeatureExtractor) Adaptive(r *EmailRecord, snap *keywords.Snapshot) []float64 {
	if snap == nil {
		snap = keywords.EmptySnapshot()
	}
	v := make([]float64, 0, AdaptiveDims)
	v = append(v, fe.attachmentFeatures(r.Attachments)...)
	v = append(v, fe.senderFeatures(r.Sender)...)
	v = append(v, fe.contentFeatures(r.Subject, r.Attachments)...)
	v = append(v, fe.temporalFeatures(r.Time)...)
	v = append(v, fe.contextFeatures(r)...)
	return v
}

// AdaptiveMatrix extracts adaptive vectors for a whole batch.
func (fe *FeatureExtractor) AdaptiveMatrix(records []*EmailRecord, snap *keywords.Snapshot) [][]float64 {
	out := make([][]float64, len(records))
	for i, r := range records {
		out[i] = fe.Adaptive(r, snap)
	}
	return out
}

// Base builds the compact vector for the unsupervised anomaly detector.
func (fe *FeatureExtractor) Base(r *EmailRecord, snap *keywords.Snapshot) []float64 {
	domain := lower(r.RecipientDomain)
	public := 0.0
	for _, d := range publicDomains {
		if strings.Contains(domain, d) {
			public = 1
			break
		}
	}
	return []float64{
		float64(len(r.Subject)),
		boolF(r.HasAttachments()),
		boolF(r.IsLeaver()),
		float64(len(r.Justification)),
		public,
	}
}

// BaseMatrix extracts base vectors for a whole batch.
func (fe *FeatureExtractor) BaseMatrix(records []*EmailRecord, snap *keywords.Snapshot) [][]float64 {
	out := make([][]float64, len(records))
	for i, r := range records {
		out[i] = fe.Base(r, snap)
	}
	return out
}

// attachmentFeatures covers the 15 attachment dimensions: extension risk
// counts, social-engineering lures, entropy, archive/password markers and the
// disguised-executable heuristic.
func (fe *FeatureExtractor) attachmentFeatures(attachments string) []float64 {
	if attachments == "" {
		return make([]float64, attachmentDims)
	}

	// Normalize so homoglyph tricks in filenames do not dodge the substring
	// checks while still counting as non-ASCII below.
	normalized := norm.NFKC.String(attachments)
	al := lower(normalized)

	f := make([]float64, 0, attachmentDims)

	highCount := 0.0
	for _, ext := range highRiskExts {
		if strings.Contains(al, ext) {
			highCount++
		}
	}
	f = append(f, highCount)

	medCount := 0.0
	for _, ext := range mediumRiskExts {
		if strings.Contains(al, ext) {
			medCount++
		}
	}
	f = append(f, medCount)

	f = append(f, boolF(containsAny(al, socialLureWords)))

	doubleExt := false
	names := strings.Split(al, ",")
	for _, name := range names {
		if strings.Count(name, ".") > 1 {
			doubleExt = true
			break
		}
	}
	f = append(f, boolF(doubleExt))

	f = append(f, float64(len(names)))

	f = append(f, boolF(containsAny(al, paymentLureWords)))
	f = append(f, boolF(containsAny(al, personalLureWords)))

	f = append(f, ShannonEntropy(al))

	f = append(f, boolF(containsAny(al, []string{"mb", "gb", "large"})))
	f = append(f, boolF(containsAny(al, []string{"zip", "rar", "7z", "tar"})))
	f = append(f, boolF(containsAny(al, []string{"password", "protected", "encrypted"})))

	// Executable extension alongside a document-looking name: the classic
	// invoice.pdf.exe shape.
	disguised := containsAny(al, highRiskExts) && containsAny(al, []string{"doc", "pdf", "txt"})
	f = append(f, boolF(disguised))

	f = append(f, boolF(containsAny(attachments, []string{"2024", "2025", "202"})))

	dots := 0.0
	if strings.Contains(attachments, ".") {
		dots = float64(strings.Count(attachments, ".") - 1)
	}
	f = append(f, dots)

	nonASCII := false
	for _, c := range attachments {
		if c > unicode.MaxASCII {
			nonASCII = true
			break
		}
	}
	f = append(f, boolF(nonASCII))

	return f
}

// senderFeatures covers the 8 sender dimensions.
func (fe *FeatureExtractor) senderFeatures(sender string) []float64 {
	if sender == "" {
		return make([]float64, senderDims)
	}

	f := make([]float64, 0, senderDims)

	if at := strings.Index(sender, "@"); at >= 0 {
		domain := lower(sender[at+1:])
		f = append(f, boolF(containsAny(domain, []string{"gmail.com", "yahoo.com", "hotmail.com"})))
		f = append(f, boolF(strings.HasSuffix(domain, ".com")))
		f = append(f, boolF(containsAny(domain, corpDomainWords)))
	} else {
		f = append(f, 0, 0, 0)
	}

	hasDigit := false
	for _, c := range sender {
		if unicode.IsDigit(c) {
			hasDigit = true
			break
		}
	}
	f = append(f, boolF(hasDigit))
	f = append(f, float64(strings.Count(sender, ".")))
	f = append(f, boolF(strings.ContainsAny(sender, "_-")))
	f = append(f, float64(len(sender)))
	f = append(f, boolF(strings.Count(sender, "@") > 1))

	return f
}

// contentFeatures covers the 7 content dimensions over subject+attachments.
func (fe *FeatureExtractor) contentFeatures(subject, attachments string) []float64 {
	combined := lower(subject + " " + attachments)

	f := make([]float64, 0, contentDims)
	f = append(f, countHits(combined, urgencyWords))
	f = append(f, countHits(combined, financialWords))
	f = append(f, countHits(combined, personalWords))
	f = append(f, countHits(combined, authorityWords))
	f = append(f, float64(len(subject)))
	f = append(f, float64(len(attachments)))

	capitalRatio := 0.0
	if subject != "" {
		caps := 0
		for _, c := range subject {
			if unicode.IsUpper(c) {
				caps++
			}
		}
		capitalRatio = float64(caps) / float64(len([]rune(subject)))
	}
	f = append(f, capitalRatio)

	return f
}

// temporalFeatures covers the 5 time dimensions. Export timestamps are free
// text, so this is token matching by design, not parsing.
func (fe *FeatureExtractor) temporalFeatures(timeStr string) []float64 {
	if timeStr == "" {
		return make([]float64, temporalDims)
	}
	tl := lower(timeStr)

	return []float64{
		boolF(containsAny(tl, weekendTokens)),
		boolF(containsAny(timeStr, afterHoursTokens)),
		boolF(containsAny(timeStr, earlyMorningTokens)),
		boolF(containsAny(timeStr, businessHourTokens)),
		boolF(containsAny(timeStr, dateTokens)),
	}
}

// contextFeatures covers the 6 organizational-context dimensions.
func (fe *FeatureExtractor) contextFeatures(r *EmailRecord) []float64 {
	return []float64{
		boolF(r.IsLeaver()),
		boolF(containsAny(lower(r.Department), highRiskDepartments)),
		boolF(r.BusinessUnit != ""),
		boolF(strings.Contains(lower(r.AccountType), "admin")),
		boolF(r.Justification != ""),
		float64(len(r.Justification)),
	}
}

// ShannonEntropy returns the character-frequency entropy of s in bits.
// Empty or single-character-alphabet strings score 0; machine-generated
// filenames with many distinct characters score high.
func ShannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]float64)
	total := 0.0
	for _, r := range s {
		counts[r]++
		total++
	}
	entropy := 0.0
	for _, c := range counts {
		p := c / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func countHits(s string, words []string) float64 {
	n := 0.0
	for _, w := range words {
		if strings.Contains(s, w) {
			n++
		}
	}
	return n
}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
