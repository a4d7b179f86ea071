/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/playlistd/internal/client"
	"github.com/friendsincode/playlistd/internal/models"
)

var (
	clientAddr    string
	clientTimeout time.Duration
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Talk to a running playlistd server",
	Long:  "Send one request per invocation, or run the interactive menu with `client menu`.",
}

func init() {
	rootCmd.AddCommand(clientCmd)

	defaultAddr := os.Getenv("PLAYLISTD_ADDR")
	if defaultAddr == "" {
		defaultAddr = "localhost:12000"
	}
	clientCmd.PersistentFlags().StringVar(&clientAddr, "addr", defaultAddr, "Server address (host:port)")
	clientCmd.PersistentFlags().DurationVar(&clientTimeout, "timeout", 10*time.Second, "Per-request timeout")

	clientCmd.AddCommand(
		clientCommand("catalog", "Print the song catalog", cobra.NoArgs, func(s *session, _ []string) error { return s.catalog() }),
		clientCommand("playlist", "Print the active playlist", cobra.NoArgs, func(s *session, _ []string) error { return s.playlist() }),
		clientCommand("add <song-id>", "Add a song to the playlist", cobra.ExactArgs(1), func(s *session, args []string) error { return s.add(args[0]) }),
		clientCommand("remove <song-id>", "Remove a song from the playlist", cobra.ExactArgs(1), func(s *session, args []string) error { return s.remove(args[0]) }),
		clientCommand("find <song-id>", "Find a song in the playlist", cobra.ExactArgs(1), func(s *session, args []string) error { return s.find(args[0]) }),
		clientCommand("new", "Open a new, empty playlist", cobra.NoArgs, func(s *session, _ []string) error { return s.openNew() }),
		clientCommand("mode <default|shuffle|loop>", "Switch play mode and start playing", cobra.ExactArgs(1), func(s *session, args []string) error { return s.mode(args[0]) }),
		clientCommand("next", "Play the next song", cobra.NoArgs, func(s *session, _ []string) error { return s.next() }),
		clientCommand("back", "Restore the previously played song", cobra.NoArgs, func(s *session, _ []string) error { return s.back() }),
		&cobra.Command{
			Use:   "menu",
			Short: "Interactive menu",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(cmd, func(s *session) error {
					return s.menu(cmd.InOrStdin())
				})
			},
		},
	)
}

func clientCommand(use, short string, args cobra.PositionalArgs, fn func(*session, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, a []string) error {
			return withSession(cmd, func(s *session) error { return fn(s, a) })
		},
	}
}

func withSession(cmd *cobra.Command, fn func(*session) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
	c, err := client.Dial(ctx, clientAddr)
	cancel()
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(&session{
		ctx:     cmd.Context(),
		c:       c,
		out:     cmd.OutOrStdout(),
		timeout: clientTimeout,
	})
}

// session renders protocol responses for a terminal.
type session struct {
	ctx     context.Context
	c       *client.Client
	out     io.Writer
	timeout time.Duration
}

func (s *session) reqCtx() (context.Context, context.CancelFunc) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func (s *session) printSongs(title string, songs []models.Song) {
	if len(songs) == 0 {
		s.printf("The playlist is empty.\n")
		return
	}
	s.printf("%s\n", title)
	for _, song := range songs {
		s.printf("  ID: %s, Title: %s, Artist: %s, Album: %s, Duration: %s\n",
			song.ID, song.Title, song.Artist, song.Album, song.Duration)
	}
}

func (s *session) catalog() error {
	ctx, cancel := s.reqCtx()
	defer cancel()
	songs, err := s.c.Catalog(ctx)
	if err != nil {
		return err
	}
	if len(songs) == 0 {
		s.printf("Received an empty catalog.\n")
		return nil
	}
	s.printSongs("Catalog:", songs)
	return nil
}

func (s *session) playlist() error {
	ctx, cancel := s.reqCtx()
	defer cancel()
	res, err := s.c.Playlist(ctx)
	if err != nil {
		return err
	}
	if res.Error != "" && len(res.UpdatedPlaylist) == 0 {
		s.printf("Error: %s\n", res.Error)
		return nil
	}
	s.printSongs("Current playlist:", res.UpdatedPlaylist)
	return nil
}

func (s *session) add(id string) error {
	ctx, cancel := s.reqCtx()
	defer cancel()
	res, err := s.c.AddSong(ctx, id)
	if err != nil {
		return err
	}
	if res.Error != "" {
		s.printf("Error: %s\n", res.Error)
	} else if res.Success != "" {
		s.printf("%s\n", res.Success)
	}
	if len(res.UpdatedPlaylist) > 0 {
		s.printSongs("Updated playlist:", res.UpdatedPlaylist)
	}
	return nil
}

func (s *session) remove(id string) error {
	ctx, cancel := s.reqCtx()
	defer cancel()
	res, err := s.c.RemoveSong(ctx, id)
	if err != nil {
		return err
	}
	if res.Error != "" {
		s.printf("Error: %s\n", res.Error)
		return nil
	}
	s.printf("%s\n", res.Success)
	s.printSongs("Updated playlist:", res.UpdatedPlaylist)
	return nil
}

func (s *session) find(id string) error {
	if _, err := strconv.Atoi(id); err != nil {
		s.printf("Error: Song ID must be a valid number.\n")
		return nil
	}
	ctx, cancel := s.reqCtx()
	defer cancel()
	res, err := s.c.FindSong(ctx, id)
	if err != nil {
		return err
	}
	if res.Song == nil {
		s.printf("Error: %s\n", res.Error)
		return nil
	}
	s.printf("Found: ID: %s, Title: %s, Artist: %s, Album: %s, Duration: %s\n",
		res.Song.ID, res.Song.Title, res.Song.Artist, res.Song.Album, res.Song.Duration)
	return nil
}

func (s *session) openNew() error {
	ctx, cancel := s.reqCtx()
	defer cancel()
	msg, err := s.c.OpenNewPlaylist(ctx)
	if err != nil {
		return err
	}
	s.printf("%s\n", msg)
	return nil
}

func (s *session) mode(mode string) error {
	ctx, cancel := s.reqCtx()
	defer cancel()
	res, err := s.c.SwitchMode(ctx, mode)
	if err != nil {
		return err
	}
	if res.PlayMode != "" {
		s.printf("Play mode switched to: %s\n", res.PlayMode)
	}
	if res.Error != "" {
		s.printf("Error: %s\n", res.Error)
		return nil
	}
	if res.NowPlaying != nil {
		s.printf("Now playing: %s by %s\n", res.NowPlaying.Title, res.NowPlaying.Artist)
	}
	return nil
}

func (s *session) next() error {
	ctx, cancel := s.reqCtx()
	defer cancel()
	res, err := s.c.PlayNext(ctx)
	if err != nil {
		return err
	}
	if res.NowPlaying == nil {
		s.printf("No more songs in the playlist.\n")
		return nil
	}
	s.printf("Now playing: %s by %s\n", res.NowPlaying.Title, res.NowPlaying.Artist)
	return nil
}

func (s *session) back() error {
	ctx, cancel := s.reqCtx()
	defer cancel()
	res, err := s.c.GoBack(ctx)
	if err != nil {
		return err
	}
	if res.RestoredSong == nil {
		s.printf("Error: %s\n", res.Error)
		return nil
	}
	s.printf("%s %s by %s\n", res.Success, res.RestoredSong.Title, res.RestoredSong.Artist)
	return nil
}

var menuModes = map[string]string{"1": "default", "2": "shuffle", "3": "loop"}

// menu runs the numbered interactive loop until "10", EOF or an I/O error.
func (s *session) menu(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	prompt := func(text string) (string, bool) {
		s.printf("%s", text)
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	for {
		s.printf("\nOptions:\n" +
			"1: Request Catalog\n" +
			"2: Open New Playlist\n" +
			"3: Request Current Playlist\n" +
			"4: Add Song to Playlist\n" +
			"5: Remove Song from Playlist\n" +
			"6: Find Song by ID\n" +
			"7: Switch to Play Mode\n" +
			"8: Play Next Song\n" +
			"9: Go Back to Previous Song\n" +
			"10: Quit\n")
		choice, ok := prompt("Enter your choice (1-10): ")
		if !ok {
			return scanner.Err()
		}

		var err error
		switch choice {
		case "1":
			err = s.catalog()
		case "2":
			err = s.openNew()
		case "3":
			err = s.playlist()
		case "4", "5", "6":
			id, ok := prompt("Enter the song ID: ")
			if !ok {
				return scanner.Err()
			}
			switch choice {
			case "4":
				err = s.add(id)
			case "5":
				err = s.remove(id)
			default:
				err = s.find(id)
			}
		case "7":
			m, ok := prompt("Choose play mode (1: Default, 2: Shuffle, 3: Loop): ")
			if !ok {
				return scanner.Err()
			}
			mode, known := menuModes[m]
			if !known {
				mode = m
			}
			err = s.mode(mode)
		case "8":
			err = s.next()
		case "9":
			err = s.back()
		case "10":
			s.printf("Connection closed.\n")
			return nil
		default:
			s.printf("Invalid option. Please try again.\n")
		}
		if err != nil {
			return err
		}
	}
}
