package types

// GameView:
//   id: string
//   version: number
//   creator: string
//   opponent: string // empty until accepted
//   stake: number
//   pot: number // stake while open, 2 * stake in progress, 0 once paid out
//   phase: "awaiting_opponent" | "in_progress" | "finished"
//   result: "pending" | "creator_won" | "opponent_won" | "draw"
//   turn: string // player to move, empty outside in_progress
//   first_mover: "creator" | "opponent"
//   winner_index: 0 | 1 | 3
//   board: string[3][3] // "X" creator, "O" opponent, "" empty
//   events: Event[] // HTTP only
