package driver

import (
	"sort"

	"github.com/strefethen/dunehd-hub-go/internal/player"
)

// Entity is the hub-facing view of one player.
type Entity struct {
	ID         string
	Name       string
	Address    string
	Subscribed bool
	Connection player.ConnectionState
	Attributes player.Attributes
}

type entityView struct {
	name       string
	address    string
	subscribed bool
	attributes player.Attributes
}

// unavailable is the attribute set pushed when a player goes away.
func unavailable() player.Attributes {
	return player.Attributes{player.AttrState: player.StateUnavailable}
}

func sortEntities(entities []Entity) {
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Name != entities[j].Name {
			return entities[i].Name < entities[j].Name
		}
		return entities[i].ID < entities[j].ID
	})
}
