package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/evanburke/chessrl/internal/agent"
	"github.com/evanburke/chessrl/internal/boardgame"
	"github.com/evanburke/chessrl/internal/config"
	"github.com/evanburke/chessrl/internal/rlenv"
	"github.com/evanburke/chessrl/internal/rlerr"
)

var (
	lightSquare = lipgloss.NewStyle().Background(lipgloss.Color("230")).Foreground(lipgloss.Color("0")).Padding(0, 1)
	darkSquare  = lipgloss.NewStyle().Background(lipgloss.Color("94")).Foreground(lipgloss.Color("0")).Padding(0, 1)
	banner      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
)

// PlayCmd lets a human play a saved model from the terminal, entering
// moves as a from/to square pair like "e2e4".
type PlayCmd struct {
	Model string `help:"Model snapshot to play against." required:""`
	As    string `help:"Color the human plays." enum:"white,black" default:"white"`
	Seed  int64  `help:"Agent action-selection seed." default:"1"`

	Profile     string `help:"Named profile supplying environment parameters." default:"eval-only"`
	ProfileFile string `help:"HCL profile bundle file." default:"profiles/eval-only.hcl"`
}

func (c *PlayCmd) Run() error {
	cfg, err := config.LoadProfile(c.ProfileFile, c.Profile)
	if err != nil {
		return rlerr.New("play", rlerr.KindConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return rlerr.New("play", rlerr.KindConfig, err)
	}

	ag, err := agent.Load(c.Model, c.Seed)
	if err != nil {
		return rlerr.New("play", rlerr.KindIO, err)
	}
	ag.SetEpsilon(0)

	human := boardgame.White
	if c.As == "black" {
		human = boardgame.Black
	}

	env := rlenv.New(cfg)
	state, mask := env.Reset()
	reader := bufio.NewReader(os.Stdin)

	fmt.Println(banner.Render("chessrl — you are " + human.String()))

	for {
		printBoard(env.Board())

		var action int
		mover := env.Board().SideToMove()
		if mover == human {
			a, err := readHumanMove(reader, env.Board())
			if err != nil {
				return rlerr.New("play", rlerr.KindIO, err)
			}
			action = a
		} else {
			a, err := ag.SelectAction(state, mask)
			if err != nil {
				return rlerr.New("play", rlerr.KindIO, err)
			}
			action = a
			m, _ := rlenv.DecodeAction(a, env.Board().LegalMoves())
			fmt.Printf("model plays %s\n", m)
		}

		nextState, _, done, info := env.Step(action)
		nextMask := env.LegalMask()

		if done || info.StepLimit {
			printBoard(env.Board())
			announceResult(info, human)
			return nil
		}
		state, mask = nextState, nextMask
	}
}

// readHumanMove repeatedly prompts until it gets a legal from/to square
// pair, e.g. "e2e4".
func readHumanMove(reader *bufio.Reader, b *boardgame.Board) (int, error) {
	legal := b.LegalMoves()
	for {
		fmt.Print("your move (e.g. e2e4): ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return 0, fmt.Errorf("read move: %w", err)
		}
		line = strings.TrimSpace(line)
		if len(line) < 4 {
			fmt.Println("enter a move as <from><to>, e.g. e2e4")
			continue
		}

		from, err1 := boardgame.ParseSquare(line[0:2])
		to, err2 := boardgame.ParseSquare(line[2:4])
		if err1 != nil || err2 != nil {
			fmt.Println("could not parse squares, try again")
			continue
		}

		for _, m := range legal {
			if m.From == from && m.To == to {
				return rlenv.EncodeAction(m), nil
			}
		}
		fmt.Println("not a legal move, try again")
	}
}

// printBoard renders the position with lipgloss-styled alternating
// square colors, rank 8 at the top.
func printBoard(b *boardgame.Board) {
	for rank := 7; rank >= 0; rank-- {
		row := fmt.Sprintf("%d ", rank+1)
		for file := 0; file < 8; file++ {
			sq := boardgame.MakeSquare(file, rank)
			p := b.At(sq)
			glyph := "."
			if !p.IsEmpty() {
				glyph = string(p.Letter())
			}
			style := lightSquare
			if (file+rank)%2 == 1 {
				style = darkSquare
			}
			row += style.Render(glyph)
		}
		fmt.Println(row)
	}
	fmt.Println("  a b c d e f g h")
}

func announceResult(info rlenv.StepInfo, human boardgame.Color) {
	if info.StepLimit {
		fmt.Println("game drawn by step limit")
		return
	}
	switch info.Result {
	case boardgame.WhiteWins:
		fmt.Println(winnerMessage(human, boardgame.White))
	case boardgame.BlackWins:
		fmt.Println(winnerMessage(human, boardgame.Black))
	default:
		fmt.Println("game drawn:", info.Reason)
	}
}

func winnerMessage(human, winner boardgame.Color) string {
	if human == winner {
		return "you win!"
	}
	return "the model wins."
}
