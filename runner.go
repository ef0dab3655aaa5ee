// Command actions for the moviekeep CLI, the stand-in caller for the
// storage contract.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/moviekeep/moviekeep/config"
	"github.com/moviekeep/moviekeep/lookup"
	"github.com/moviekeep/moviekeep/model"
	"github.com/moviekeep/moviekeep/store"
)

// Runner holds the dependencies of the CLI commands.
type Runner struct {
	cfg    *config.Config
	logger *log.Logger
	lookup *lookup.Client
	output io.Writer
}

// NewRunner creates a Runner over the given configuration.
func NewRunner(cfg *config.Config, logger *log.Logger) *Runner {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &Runner{
		cfg:    cfg,
		logger: logger,
		lookup: lookup.NewClient(cfg.Lookup.BaseURL, cfg.Lookup.APIKey, cfg.Lookup.RequestsPerSecond),
		output: os.Stdout,
	}
}

func (r *Runner) register() []*cli.Command {
	return []*cli.Command{
		usersCommand(r),
		moviesCommand(r),
		reviewsCommand(r),
		configCommand(r),
	}
}

// openStore resolves the backend from flags with config-file fallback.
func (r *Runner) openStore(cmd *cli.Command) (store.Store, error) {
	backend := cmd.String("backend")
	if backend == "" {
		backend = r.cfg.Storage.Backend
	}
	dataDir := cmd.String("data-dir")
	if dataDir == "" {
		dataDir = r.cfg.Storage.DataDir
	}
	return store.New(backend, dataDir)
}

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.output, format+"\n", args...)
}

func (r *Runner) UsersAdd(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	u, err := s.AddUser(store.NewUser{
		Name:     cmd.String("name"),
		Username: cmd.String("username"),
		Email:    cmd.String("email"),
		Password: cmd.String("password"),
	})
	if err != nil {
		return err
	}
	r.logger.Info("user created", "id", u.ID, "username", u.Username)
	r.printf("%d\t%s\t%s", u.ID, u.Username, u.Name)
	return nil
}

func (r *Runner) UsersList(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	users, err := s.GetAllUsers()
	if err != nil {
		return err
	}
	for _, u := range users {
		r.printf("%d\t%s\t%s\t%s", u.ID, u.Username, u.Name, u.Email)
	}
	return nil
}

func (r *Runner) UsersShow(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	u, err := s.FindUser(cmd.String("username"), int(cmd.Int("id")))
	if err != nil {
		return err
	}
	r.printf("%d\t%s\t%s\t%s", u.ID, u.Username, u.Name, u.Email)
	return nil
}

func (r *Runner) UsersUpdate(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	id := int(cmd.Int("id"))
	upd := store.UserUpdate{
		Name:     cmd.String("name"),
		Username: cmd.String("username"),
		Email:    cmd.String("email"),
	}
	if err := s.UpdateUser(id, upd, cmd.String("password")); err != nil {
		return err
	}
	r.logger.Info("user updated", "id", id)
	return nil
}

func (r *Runner) UsersDelete(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	id := int(cmd.Int("id"))
	if err := s.DeleteUser(id, cmd.String("password")); err != nil {
		return err
	}
	r.logger.Info("user deleted, movies removed", "id", id)
	return nil
}

func (r *Runner) UsersPasswd(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	ok, err := s.CheckPassword(int(cmd.Int("id")), cmd.String("password"))
	if err != nil {
		return err
	}
	r.printf("%t", ok)
	return nil
}

func (r *Runner) MoviesAdd(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	m := model.Movie{
		Title:  cmd.String("title"),
		Year:   cmd.String("year"),
		Poster: cmd.String("poster"),
	}
	if v := cmd.String("rating"); v != "" {
		m.Rating, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid rating %q: %w", v, err)
		}
	}
	if cmd.Bool("fetch") {
		res, err := r.lookup.Lookup(ctx, m.Title)
		if err != nil {
			return err
		}
		m.Title = res.Title
		m.Year = res.Year
		m.Rating = res.Rating
		m.Poster = res.Poster
		r.logger.Info("metadata fetched", "title", m.Title, "year", m.Year)
	}
	ok, msg := s.AddMovie(int(cmd.Int("user")), m)
	if !ok {
		return errors.New(msg)
	}
	r.printf("%s", msg)
	return nil
}

func (r *Runner) MoviesList(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	movies, err := s.GetUserMovies(int(cmd.Int("user")))
	if err != nil {
		return err
	}
	for _, m := range movies {
		r.printf("%d\t%s\t%s\t%.1f", m.ID, m.Title, m.Year, m.Rating)
	}
	return nil
}

func (r *Runner) MoviesShow(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	m, err := s.GetMovie(int(cmd.Int("user")), int(cmd.Int("id")))
	if err != nil {
		return err
	}
	r.printf("%d\t%s\t%s\t%.1f\t%s", m.ID, m.Title, m.Year, m.Rating, m.Poster)
	return nil
}

func (r *Runner) MoviesUpdate(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	upd := store.MovieUpdate{
		Title: cmd.String("title"),
		Year:  cmd.String("year"),
	}
	if v := cmd.String("rating"); v != "" {
		upd.Rating, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid rating %q: %w", v, err)
		}
	}
	return s.UpdateMovie(int(cmd.Int("user")), int(cmd.Int("id")), upd)
}

func (r *Runner) MoviesDelete(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	confirmation, err := s.DeleteMovie(int(cmd.Int("user")), int(cmd.Int("id")))
	if err != nil {
		return err
	}
	r.printf("%s", confirmation)
	return nil
}

// reviewStore narrows a Store to the one backend that supports reviews.
func (r *Runner) reviewStore(cmd *cli.Command) (*store.SqliteStore, func() error, error) {
	s, err := r.openStore(cmd)
	if err != nil {
		return nil, nil, err
	}
	ss, ok := s.(*store.SqliteStore)
	if !ok {
		s.Close()
		return nil, nil, errors.New("reviews are only available with the sqlite backend")
	}
	return ss, ss.Close, nil
}

func (r *Runner) ReviewsAdd(ctx context.Context, cmd *cli.Command) error {
	ss, closeStore, err := r.reviewStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()
	rev, err := ss.AddReview(int(cmd.Int("user")), int(cmd.Int("movie")), cmd.String("text"))
	if err != nil {
		return err
	}
	r.logger.Info("review added", "id", rev.ID, "movie", rev.MovieID)
	return nil
}

func (r *Runner) ReviewsList(ctx context.Context, cmd *cli.Command) error {
	ss, closeStore, err := r.reviewStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()
	var reviews []model.Review
	if movieID := int(cmd.Int("movie")); movieID != 0 {
		reviews, err = ss.MovieReviews(movieID)
	} else {
		reviews, err = ss.AllReviews()
	}
	if err != nil {
		return err
	}
	for _, rev := range reviews {
		r.printf("%d\tuser=%d\tmovie=%d\t%s", rev.ID, rev.UserID, rev.MovieID, rev.Text)
	}
	return nil
}

func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("path")
	if err := config.WriteExample(path); err != nil {
		return err
	}
	r.logger.Info("config written", "path", path)
	return nil
}
