// Command definitions for the moviekeep CLI.
package main

import "github.com/urfave/cli/v3"

// storageFlags are shared by every command that opens a backend.
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "backend",
			Aliases: []string{"b"},
			Usage:   "Storage backend: json, csv or sqlite",
		},
		&cli.StringFlag{
			Name:  "data-dir",
			Usage: "Directory holding the backend's files",
		},
	}
}

func usersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Manage registered users",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Register a new user",
				Flags: append(storageFlags(),
					&cli.StringFlag{Name: "name", Usage: "Display name", Required: true},
					&cli.StringFlag{Name: "username", Usage: "Unique login name", Required: true},
					&cli.StringFlag{Name: "email", Usage: "Email address"},
					&cli.StringFlag{Name: "password", Usage: "Password", Required: true},
				),
				Action: r.UsersAdd,
			},
			{
				Name:   "list",
				Usage:  "List all users",
				Flags:  storageFlags(),
				Action: r.UsersList,
			},
			{
				Name:  "show",
				Usage: "Show one user by id or username",
				Flags: append(storageFlags(),
					&cli.IntFlag{Name: "id", Usage: "User id"},
					&cli.StringFlag{Name: "username", Usage: "Username"},
				),
				Action: r.UsersShow,
			},
			{
				Name:  "update",
				Usage: "Update a user's profile (requires the current password)",
				Flags: append(storageFlags(),
					&cli.IntFlag{Name: "id", Usage: "User id", Required: true},
					&cli.StringFlag{Name: "password", Usage: "Current password", Required: true},
					&cli.StringFlag{Name: "name", Usage: "New display name"},
					&cli.StringFlag{Name: "username", Usage: "New username"},
					&cli.StringFlag{Name: "email", Usage: "New email"},
				),
				Action: r.UsersUpdate,
			},
			{
				Name:  "delete",
				Usage: "Delete a user and every movie in their list",
				Flags: append(storageFlags(),
					&cli.IntFlag{Name: "id", Usage: "User id", Required: true},
					&cli.StringFlag{Name: "password", Usage: "Current password", Required: true},
				),
				Action: r.UsersDelete,
			},
			{
				Name:  "passwd",
				Usage: "Check a password against the stored hash",
				Flags: append(storageFlags(),
					&cli.IntFlag{Name: "id", Usage: "User id", Required: true},
					&cli.StringFlag{Name: "password", Usage: "Password to check", Required: true},
				),
				Action: r.UsersPasswd,
			},
		},
	}
}

func moviesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "movies",
		Usage: "Manage a user's movie list",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add a movie to a user's list",
				Flags: append(storageFlags(),
					&cli.IntFlag{Name: "user", Usage: "Owner's user id", Required: true},
					&cli.StringFlag{Name: "title", Usage: "Movie title", Required: true},
					&cli.StringFlag{Name: "year", Usage: "Release year"},
					&cli.StringFlag{Name: "rating", Usage: "Rating, e.g. 8.0"},
					&cli.StringFlag{Name: "poster", Usage: "Poster URL"},
					&cli.BoolFlag{Name: "fetch", Usage: "Fill year/rating/poster from the lookup service"},
				),
				Action: r.MoviesAdd,
			},
			{
				Name:  "list",
				Usage: "List a user's movies",
				Flags: append(storageFlags(),
					&cli.IntFlag{Name: "user", Usage: "Owner's user id", Required: true},
				),
				Action: r.MoviesList,
			},
			{
				Name:  "show",
				Usage: "Show one movie from a user's list",
				Flags: append(storageFlags(),
					&cli.IntFlag{Name: "user", Usage: "Owner's user id", Required: true},
					&cli.IntFlag{Name: "id", Usage: "Movie id", Required: true},
				),
				Action: r.MoviesShow,
			},
			{
				Name:  "update",
				Usage: "Update a movie in a user's list",
				Flags: append(storageFlags(),
					&cli.IntFlag{Name: "user", Usage: "Owner's user id", Required: true},
					&cli.IntFlag{Name: "id", Usage: "Movie id", Required: true},
					&cli.StringFlag{Name: "title", Usage: "New title"},
					&cli.StringFlag{Name: "year", Usage: "New year"},
					&cli.StringFlag{Name: "rating", Usage: "New rating"},
				),
				Action: r.MoviesUpdate,
			},
			{
				Name:  "delete",
				Usage: "Delete a movie from a user's list",
				Flags: append(storageFlags(),
					&cli.IntFlag{Name: "user", Usage: "Owner's user id", Required: true},
					&cli.IntFlag{Name: "id", Usage: "Movie id", Required: true},
				),
				Action: r.MoviesDelete,
			},
		},
	}
}

func reviewsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "reviews",
		Usage: "Manage movie reviews (sqlite backend only)",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Review a movie in your list",
				Flags: append(storageFlags(),
					&cli.IntFlag{Name: "user", Usage: "Reviewer's user id", Required: true},
					&cli.IntFlag{Name: "movie", Usage: "Movie id", Required: true},
					&cli.StringFlag{Name: "text", Usage: "Review text", Required: true},
				),
				Action: r.ReviewsAdd,
			},
			{
				Name:  "list",
				Usage: "List reviews, optionally for one movie",
				Flags: append(storageFlags(),
					&cli.IntFlag{Name: "movie", Usage: "Movie id"},
				),
				Action: r.ReviewsList,
			},
		},
	}
}

func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration helpers",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write an example config file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Usage: "Where to write the config",
						Value: "config.toml",
					},
				},
				Action: r.ConfigInit,
			},
		},
	}
}
