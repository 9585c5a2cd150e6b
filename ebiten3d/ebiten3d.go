// Package ebiten3d hosts a stage3d GameManager in an Ebitengine window: it feeds the window's input to the
// GameManager, runs one frame per tick and draws the Worlds.
package ebiten3d

import (
	"errors"
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"
	"go.uber.org/zap"

	"github.com/solarlune/stage3d"
	"github.com/solarlune/stage3d/colors"
	"github.com/solarlune/stage3d/config"
)

// Game implements ebiten.Game around a GameManager.
type Game struct {
	gm       *stage3d.GameManager
	renderer *Renderer
	input    *inputPoller
	log      *zap.Logger

	width, height int
	quit          bool

	// OnDraw, if set, is called after the Worlds are drawn.
	OnDraw func(screen *ebiten.Image)
}

var _ ebiten.Game = (*Game)(nil)

// NewGame creates a Game for gm. The renderer should be the one gm was created with.
func NewGame(gm *stage3d.GameManager, renderer *Renderer, log *zap.Logger) *Game {
	if log == nil {
		log = zap.NewNop()
	}
	return &Game{gm: gm, renderer: renderer, input: newInputPoller(), log: log}
}

// NewRendererFromConfig creates a Renderer with the clear color and debug settings of cfg.
func NewRendererFromConfig(cfg *config.Config) (*Renderer, error) {
	clearColor, err := colors.Parse(cfg.Window.ClearColor)
	if err != nil {
		return nil, fmt.Errorf("window clear color: %w", err)
	}
	renderer := NewRenderer(clearColor)
	renderer.DrawWireframes = cfg.Debug.DrawWireframes
	renderer.ShowStats = cfg.Debug.ShowStats
	return renderer, nil
}

func (game *Game) GameManager() *stage3d.GameManager { return game.gm }
func (game *Game) Renderer() *Renderer               { return game.renderer }

// Quit ends the game after the current tick.
func (game *Game) Quit() { game.quit = true }

func (game *Game) Update() error {
	if ebiten.IsWindowBeingClosed() {
		game.gm.OnWindowClose()
		return ebiten.Termination
	}
	if game.quit {
		return ebiten.Termination
	}

	game.input.poll(game.gm)
	game.gm.OnBeforeNewFrame(1 / float64(ebiten.TPS()))
	return nil
}

func (game *Game) Draw(screen *ebiten.Image) {
	game.renderer.Draw(screen, game.gm.Worlds())
	if game.OnDraw != nil {
		game.OnDraw(screen)
	}
}

func (game *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	if outsideWidth != game.width || outsideHeight != game.height {
		game.width, game.height = outsideWidth, outsideHeight
		game.gm.OnWindowSizeChanged(outsideWidth, outsideHeight)
	}
	return outsideWidth, outsideHeight
}

// Run opens the window described by window and runs game until the window closes or Quit is called, then shuts
// the GameManager down.
func Run(game *Game, window config.WindowConfig) error {
	ebiten.SetWindowTitle(window.Title)
	ebiten.SetWindowSize(window.Width, window.Height)
	ebiten.SetVsyncEnabled(window.VSync)
	ebiten.SetWindowClosingHandled(true)
	if window.Resizable {
		ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	}

	game.log.Info("window opening",
		zap.String("title", window.Title),
		zap.Int("width", window.Width),
		zap.Int("height", window.Height),
	)

	err := ebiten.RunGame(game)
	game.gm.Shutdown()
	if err != nil && !errors.Is(err, ebiten.Termination) {
		return fmt.Errorf("running game: %w", err)
	}
	return nil
}
