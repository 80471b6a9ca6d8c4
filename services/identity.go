package services

import (
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"referee-hand/config"
)

// Cluster sammelt alle Beobachtungen, die zu einer Gutachter-Identität gehören:
// die Adressen (nach Alias-Substitution auf einen Key gefaltet) und die
// beobachteten Display-Namen als Multiset.
type Cluster struct {
	Key       string
	Addresses map[string]bool
	Names     map[string]int

	// mappedPrimary ist die Zieladresse der Alias-Substitution, falls beobachtet.
	mappedPrimary string
	// seededName kommt aus einem bereits persistierten Referee-Datensatz und
	// gewinnt, solange keine bessere Beobachtung auftaucht.
	seededName string
}

// IdentityResolver mappt jede in Events auftauchende Adresse auf genau eine
// kanonische Gutachter-Identität. Bekannte Editor- und Betreiber-Adressen
// werden nie geclustert; Clustering schlägt nie hart fehl.
type IdentityResolver struct {
	logger   *zap.Logger
	aliases  map[string]string
	excluded map[string]bool
	clusters map[string]*Cluster
	order    []string
}

// NewIdentityResolver baut einen Resolver aus der Regel-Konfiguration und den
// eigenen Adressen des Betreibers.
func NewIdentityResolver(rules *config.Rules, ownAddresses []string, logger *zap.Logger) *IdentityResolver {
	excluded := make(map[string]bool)
	for _, a := range rules.Exclusions {
		excluded[a] = true
	}
	for _, a := range ownAddresses {
		excluded[strings.ToLower(a)] = true
	}
	// Eigene Kopie der Alias-Tabelle: Seed lernt Alternates dazu, und das darf
	// weder die geteilten Rules mutieren noch zwischen parallelen Läufen racen.
	aliases := make(map[string]string, len(rules.Aliases))
	for from, to := range rules.Aliases {
		aliases[from] = to
	}
	return &IdentityResolver{
		logger:   logger,
		aliases:  aliases,
		excluded: excluded,
		clusters: make(map[string]*Cluster),
	}
}

// Resolve ordnet eine Adresse ihrem Cluster zu und registriert die Beobachtung.
// Liefert (nil, false) für ausgeschlossene oder unparsbare Adressen; letztere
// werden mit Warnung verworfen.
func (r *IdentityResolver) Resolve(address, displayName string) (*Cluster, bool) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" || !strings.Contains(address, "@") {
		r.logger.Warn("Dropping unparseable address", zap.String("address", address))
		return nil, false
	}
	if r.excluded[address] {
		return nil, false
	}

	mapped := address
	if target, ok := r.aliases[address]; ok && target != "" {
		mapped = target
	}
	key := clusterKey(mapped)

	cluster, ok := r.clusters[key]
	if !ok {
		cluster = &Cluster{
			Key:       key,
			Addresses: make(map[string]bool),
			Names:     make(map[string]int),
		}
		r.clusters[key] = cluster
		r.order = append(r.order, key)
	}
	cluster.Addresses[address] = true
	if _, viaAlias := r.aliases[address]; !viaAlias && cluster.mappedPrimary == "" {
		cluster.mappedPrimary = address
	}
	if name := normalizeDisplayName(displayName); name != "" {
		cluster.Names[name]++
	}
	return cluster, true
}

// Seed registriert eine bereits persistierte Identität, damit wiederholte Läufe
// dieselben Cluster-Keys und Namen produzieren.
func (r *IdentityResolver) Seed(primary, canonicalName string, alternates []string) {
	cluster, ok := r.Resolve(primary, "")
	if !ok {
		return
	}
	cluster.mappedPrimary = strings.ToLower(strings.TrimSpace(primary))
	if canonicalName != "" {
		cluster.seededName = canonicalName
	}
	for _, alt := range alternates {
		alt = strings.ToLower(strings.TrimSpace(alt))
		if alt == "" || alt == cluster.mappedPrimary {
			continue
		}
		// Alternates desselben Gutachters falten auf denselben Key.
		if _, exists := r.aliases[alt]; !exists {
			r.aliases[alt] = cluster.mappedPrimary
		}
	}
}

// Clusters liefert alle Cluster in der Reihenfolge ihres ersten Auftretens.
func (r *IdentityResolver) Clusters() []*Cluster {
	out := make([]*Cluster, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.clusters[key])
	}
	return out
}

// PrimaryAddress ist die Zieladresse der Alias-Substitution, sonst die
// lexikographisch kleinste beobachtete Adresse.
func (c *Cluster) PrimaryAddress() string {
	if c.mappedPrimary != "" && c.Addresses[c.mappedPrimary] {
		return c.mappedPrimary
	}
	addrs := c.SortedAddresses()
	if len(addrs) == 0 {
		return ""
	}
	return addrs[0]
}

// AlternateAddresses sind alle beobachteten Adressen außer der primären.
func (c *Cluster) AlternateAddresses() []string {
	primary := c.PrimaryAddress()
	var out []string
	for _, a := range c.SortedAddresses() {
		if a != primary {
			out = append(out, a)
		}
	}
	return out
}

// SortedAddresses liefert die Adressen des Clusters deterministisch sortiert.
func (c *Cluster) SortedAddresses() []string {
	out := make([]string, 0, len(c.Addresses))
	for a := range c.Addresses {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// CanonicalName wählt den besten beobachteten Display-Namen. Unplausible
// Kandidaten fliegen raus; ohne plausiblen Kandidaten wird ein Name aus dem
// Mailbox-Username synthetisiert (AmbiguousIdentityWarning beim Aufrufer).
func (c *Cluster) CanonicalName() (name string, synthesized bool) {
	username := c.Key
	best := ""
	bestScore := -1
	for candidate, count := range c.Names {
		score := scoreName(candidate, username)
		if score < 0 {
			continue
		}
		// Mehrfach beobachtete Namen schlagen Einzelbeobachtungen gleicher Güte.
		score = score*1000 + min(count, 99)*10
		if score > bestScore || (score == bestScore && len(candidate) > len(best)) {
			best, bestScore = candidate, score
		}
	}
	if best != "" {
		return best, false
	}
	if c.seededName != "" {
		return c.seededName, false
	}
	return GuessNameFromUsername(username), true
}

// clusterKey ist der Local-Part der (ggf. alias-substituierten) Adresse.
func clusterKey(address string) string {
	if at := strings.Index(address, "@"); at > 0 {
		return address[:at]
	}
	return address
}

// nonNameVocabulary sind Wörter, die in echten Personennamen nicht vorkommen.
var nonNameVocabulary = map[string]bool{
	"editor": true, "editorial": true, "office": true, "journal": true,
	"admin": true, "support": true, "noreply": true, "no-reply": true,
	"mail": true, "mailer": true, "daemon": true, "system": true,
	"team": true, "notification": true, "notifications": true,
	"university": true, "department": true, "dept": true,
	"manuscript": true, "submission": true, "reviewer": true,
}

// scoreName bewertet einen Namens-Kandidaten. Negativ = unplausibel.
func scoreName(name, username string) int {
	runes := []rune(name)
	if len(runes) < 4 {
		return -1
	}
	for _, r := range runes {
		if unicode.IsDigit(r) {
			return -1
		}
	}
	words := strings.Fields(name)
	if len(words) == 0 || len(words) > 5 {
		return -1
	}
	capitalized := 0
	for _, w := range words {
		if nonNameVocabulary[strings.ToLower(strings.Trim(w, ".,"))] {
			return -1
		}
		if r := []rune(w)[0]; unicode.IsUpper(r) {
			capitalized++
		}
	}

	if strings.EqualFold(name, username) {
		return 0
	}
	if len(words) >= 2 && capitalized >= 2 {
		return 2
	}
	return 1
}

// normalizeDisplayName bereinigt einen Header-Namen: Unicode-NFC, Quotes weg,
// "Last, First" wird zu "First Last" gedreht.
func normalizeDisplayName(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	name = strings.Trim(name, `"'`)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	if parts := strings.SplitN(name, ",", 2); len(parts) == 2 && strings.Count(name, ",") == 1 {
		last := strings.TrimSpace(parts[0])
		first := strings.TrimSpace(parts[1])
		if last != "" && first != "" {
			return first + " " + last
		}
	}
	return name
}

// GuessNameFromUsername synthetisiert einen Namen aus dem Mailbox-Username:
// Split an "."/"_"/"-", Segmente kapitalisieren, Ziffern verwerfen.
func GuessNameFromUsername(username string) string {
	segments := strings.FieldsFunc(username, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	var words []string
	for _, seg := range segments {
		seg = strings.TrimFunc(seg, unicode.IsDigit)
		if seg == "" {
			continue
		}
		runes := []rune(strings.ToLower(seg))
		runes[0] = unicode.ToUpper(runes[0])
		words = append(words, string(runes))
	}
	if len(words) == 0 {
		return username
	}
	return strings.Join(words, " ")
}
