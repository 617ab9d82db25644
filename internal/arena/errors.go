package arena

import "errors"

// ErrNotInHoldWindow is returned by AddHold when called outside the
// PreCreate/Create/Destroy callback windows — a configuration error per
// §4.2 ("logged; not fatal to the arena").
var ErrNotInHoldWindow = errors.New("arena: add_hold called outside a PreCreate/Create/Destroy window")
