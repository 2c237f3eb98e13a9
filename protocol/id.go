package protocol

import (
	"fmt"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	adjectives = []string{
		"amber", "bold", "brave", "brisk", "calm", "clever", "cosmic", "crisp",
		"dapper", "eager", "fancy", "fluffy", "gentle", "giant", "glad", "golden",
		"happy", "hidden", "humble", "icy", "jolly", "keen", "kind", "lazy",
		"lucky", "mellow", "merry", "mighty", "misty", "modern", "noble", "odd",
		"olive", "plain", "polite", "proud", "quick", "quiet", "rapid", "rusty",
		"shiny", "silent", "silly", "sleepy", "smooth", "snappy", "solid", "spicy",
		"sturdy", "sunny", "swift", "tame", "tender", "tidy", "tiny", "upbeat",
		"vast", "violet", "warm", "wild", "wise", "witty", "young", "zesty",
	}
	nouns = []string{
		"ant", "badger", "bat", "bear", "bee", "bison", "cat", "cobra",
		"crab", "crane", "crow", "deer", "dingo", "dodo", "dog", "dove",
		"duck", "eagle", "eel", "elk", "emu", "falcon", "ferret", "finch",
		"fox", "frog", "gecko", "goat", "goose", "hawk", "heron", "horse",
		"ibis", "jackal", "koala", "lark", "lemur", "lion", "llama", "lynx",
		"mole", "moose", "moth", "newt", "otter", "owl", "panda", "puma",
		"quail", "rabbit", "raven", "seal", "shark", "sloth", "snail", "swan",
		"tiger", "toad", "trout", "turtle", "viper", "walrus", "wolf", "yak",
	}
	verbs = []string{
		"argues", "bakes", "beams", "blinks", "bounces", "builds", "chants", "climbs",
		"dances", "dashes", "digs", "dives", "dreams", "drifts", "eats", "fetches",
		"flies", "floats", "glides", "grins", "hides", "hikes", "hops", "hums",
		"jogs", "joins", "jumps", "knits", "laughs", "leaps", "lifts", "listens",
		"marches", "mends", "nods", "paints", "plays", "ponders", "prowls", "races",
		"reads", "rests", "rides", "roams", "runs", "sails", "sings", "skips",
		"sleeps", "smiles", "sneaks", "soars", "spins", "sprints", "swims", "talks",
		"thinks", "trots", "tumbles", "waits", "walks", "wanders", "whistles", "yawns",
	}
)

// PhraseID returns a human-readable token such as "brave-otter-jumps-3f9a".
// Words and suffix are taken from the random bytes of a version 4 UUID.
func PhraseID() string {
	u := uuid.New()
	return fmt.Sprintf("%s-%s-%s-%02x%02x",
		adjectives[int(u[0])%len(adjectives)],
		nouns[int(u[1])%len(nouns)],
		verbs[int(u[2])%len(verbs)],
		u[3], u[4],
	)
}

func UUID() string {
	return uuid.NewString()
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// ULID returns a lexically sortable token.
func ULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// IDFuncByName resolves "phrase", "uuid" or "ulid".
func IDFuncByName(name string) (IDFunc, error) {
	switch name {
	case "", "phrase":
		return PhraseID, nil
	case "uuid":
		return UUID, nil
	case "ulid":
		return ULID, nil
	}
	return nil, fmt.Errorf("protocol: unknown id style %q", name)
}
