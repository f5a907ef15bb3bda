package games

// Two players try to say the same word at the same time
// Each round, both players type one word and submit it without seeing the other's entry
// Once both words are in, they are compared (case/punctuation insensitive)
// If they match, the players win and the game ends
// If not, both words are revealed, and the next round begins; the goal is to converge
// using the previous words as the only shared signal

// Display formats:
// Two bubbles side by side, hidden until both words are submitted
// Round history below the board, newest round first

// Implementation details:
// - One shared game document per session; every change pushed to both players over websockets
// - Identify players by cookie on first page load
// - Game ids are six letters, shareable as a link or QR code
// - Either client may resolve a round; a conditional write keeps the two from racing

// How to play
// - Player 1 creates a game and shares the code
// - Player 2 opens the link (or types the code) and enters their name
// - Both submit a word each round until the words meld
// - After a win, both players can opt into a rematch, which starts a fresh game
//   with the same pair
