// Package solar implements the domain logic behind the solar-system widget's
// "focus-solar-planet" tool: resolving a user-supplied planet name to a
// canonical planet and describing it.
//
// Name resolution is deliberately forgiving, since chat clients hand
// through free-form text, but an unresolvable name is still an error: the tool
// result says so instead of silently recentring on a default.
package solar

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/orreryhq/orrery/internal/server"
)

// DefaultPlanet is focused when the caller supplies no planet name.
const DefaultPlanet = "Earth"

// Planets lists the canonical planet names in orbital order.
var Planets = []string{
	"Mercury",
	"Venus",
	"Earth",
	"Mars",
	"Jupiter",
	"Saturn",
	"Uranus",
	"Neptune",
}

// aliases maps folk and mythological names onto canonical planets.
var aliases = map[string]string{
	"terra":    "Earth",
	"gaia":     "Earth",
	"soliii":   "Earth",
	"tellus":   "Earth",
	"ares":     "Mars",
	"jove":     "Jupiter",
	"zeus":     "Jupiter",
	"cronus":   "Saturn",
	"ouranos":  "Uranus",
	"poseidon": "Neptune",
}

var descriptions = map[string]string{
	"Mercury": "Mercury is the smallest planet in the Solar System and the closest to the Sun. It has a rocky, cratered surface and extreme temperature swings.",
	"Venus":   "Venus, similar in size to Earth, is cloaked in thick clouds of sulfuric acid with surface temperatures hot enough to melt lead.",
	"Earth":   "Earth is the only known planet to support life, with liquid water covering most of its surface and a protective atmosphere.",
	"Mars":    "Mars, the Red Planet, shows evidence of ancient rivers and volcanoes and is a prime target in the search for past life.",
	"Jupiter": "Jupiter is the largest planet, a gas giant with a Great Red Spot, an enormous storm raging for centuries.",
	"Saturn":  "Saturn is famous for its stunning ring system composed of billions of ice and rock particles orbiting the planet.",
	"Uranus":  "Uranus is an ice giant rotating on its side, giving rise to extreme seasonal variations during its long orbit.",
	"Neptune": "Neptune, the farthest known giant, is a deep-blue world with supersonic winds and a faint ring system.",
}

// Normalize resolves a free-form planet name to its canonical form. An empty
// or blank name resolves to [DefaultPlanet]. Matching ignores case and
// non-alphanumeric characters, accepts the aliases above, and finally falls
// back to prefix matching in orbital order, so an ambiguous prefix resolves
// to the innermost planet ("m" is Mercury, not Mars). The second return
// value is false when nothing matches.
func Normalize(name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return DefaultPlanet, true
	}
	clean := alnum(key)

	for _, planet := range Planets {
		if clean == alnum(strings.ToLower(planet)) || key == strings.ToLower(planet) {
			return planet, true
		}
	}
	if alias, ok := aliases[clean]; ok {
		return alias, true
	}
	for _, planet := range Planets {
		if strings.HasPrefix(alnum(strings.ToLower(planet)), clean) {
			return planet, true
		}
	}
	return "", false
}

// Description returns the one-paragraph description of a canonical planet.
func Description(planet string) string {
	return descriptions[planet]
}

// alnum strips everything but letters and digits.
func alnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Logic is the [server.LogicFunc] for the solar-system widget. Arguments:
//
//	planetName string: planet to focus (case insensitive, default Earth)
//	autoOrbit  bool: keep the camera orbiting if the target is missing
//	                 (default true)
func Logic(_ context.Context, args map[string]any) (*server.LogicResult, error) {
	name, _ := args["planetName"].(string)
	autoOrbit := true
	if v, ok := args["autoOrbit"].(bool); ok {
		autoOrbit = v
	}

	planet, ok := Normalize(name)
	if !ok {
		return nil, fmt.Errorf("unknown planet %q; provide one of: %s", name, strings.Join(Planets, ", "))
	}

	return &server.LogicResult{
		Text: fmt.Sprintf("Centered the solar system view on %s.", planet),
		Structured: map[string]any{
			"planetName":        planet,
			"planetDescription": Description(planet),
			"autoOrbit":         autoOrbit,
		},
	}, nil
}
