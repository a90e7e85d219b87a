package types

// Client -> Server (websocket, /ws?id=<game id>)
// Accept:
//   player: string
//   value: number // must equal the game's stake
//
// Move:
//   player: string
//   row: 0 | 1 | 2
//   col: 0 | 1 | 2

// Server -> Client
// StateSnapshot:
//   version: number
//   state: GameView (see snapshot.go)
//
// Error:
//   error: string // e.g. "out of turn", "cell occupied", "game over"

// HTTP
// POST /games                 { player, stake }      -> 201 GameView
// GET  /games                                        -> { games: string[] }
// GET  /games/{id}                                   -> GameView with events
// DELETE /games/{id}                                 -> 204 (409 PotHeld while stakes are held)
// GET  /games/{id}/winner                            -> { winner: 0 | 1 | 3 }
// POST /games/{id}/accept     { player, value }      -> GameView
// POST /games/{id}/moves      { player, row, col }   -> GameView
// POST /accounts/{id}/deposit { amount }             -> { account, balance }
// GET  /accounts/{id}                                -> { account, balance }
//
// Errors: { code, error } where code is one of
//   InvalidStake | WrongStake | OutOfBounds (400), Unauthorized (403),
//   InvalidPhase | OutOfTurn | CellOccupied | GameOver | GameExists | PotHeld (409),
//   InsufficientFunds (402), PayoutFailed (502), TableClosed | Unavailable (503)
