package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fastvote/client-go/internal/app"
	"github.com/fastvote/client-go/internal/config"
	infra_history "github.com/fastvote/client-go/internal/infra/history"
	infra_rest "github.com/fastvote/client-go/internal/infra/rest"
	"github.com/fastvote/client-go/internal/model"
	usecase_session "github.com/fastvote/client-go/internal/usecase/session"
	usecase_vote "github.com/fastvote/client-go/internal/usecase/vote"
)

type console struct {
	scanner *bufio.Scanner
}

func (c *console) readLine(prompt string) (string, bool) {
	fmt.Print(prompt)
	if !c.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.scanner.Text()), true
}

// VoteAccepted and AlreadyVoted implement usecase_vote.Notifier.
func (c *console) VoteAccepted(model.RoomID) {
	fmt.Println("\n🎉 Your vote is in!")
}

func (c *console) AlreadyVoted(model.RoomID) {
	fmt.Println("\nYou have already voted in this poll.")
}

func main() {
	cfg := config.Load()

	ui := &console{scanner: bufio.NewScanner(os.Stdin)}

	a, err := app.New(cfg, app.WithNotifier(ui))
	if err != nil {
		fmt.Printf("startup failed: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx := context.Background()

	for {
		fmt.Println("\n=== FastVote Console Client ===")
		fmt.Println("1. Browse polls")
		fmt.Println("2. Open a poll")
		fmt.Println("3. Create a poll")
		fmt.Println("4. My polls")
		fmt.Println("0. Exit")

		input, ok := ui.readLine("Choose an action: ")
		if !ok {
			return
		}

		switch input {
		case "1":
			if err := browsePolls(ctx, a, ui); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
		case "2":
			id, ok := ui.readLine("Poll id: ")
			if !ok || id == "" {
				continue
			}
			if err := openPoll(ctx, a, ui, model.RoomID(id), ""); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
		case "3":
			if err := createPoll(ctx, a, ui); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
		case "4":
			if err := myPolls(ctx, a, ui); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
		case "0":
			fmt.Println("Bye!")
			return
		default:
			fmt.Println("Unknown choice")
		}
	}
}

func browsePolls(ctx context.Context, a *app.App, ui *console) error {
	search, _ := ui.readLine("Search (empty for all): ")

	list, err := a.API.ListRooms(ctx, infra_rest.ListParams{Search: search, Sort: "latest", PageSize: 20})
	if err != nil {
		return err
	}

	if len(list.Rooms) == 0 {
		fmt.Println("No open polls right now.")
		return nil
	}

	fmt.Printf("\n%d poll(s):\n", list.Total)
	for i, room := range list.Rooms {
		flags := ""
		if room.HasPassword {
			flags += " 🔒"
		}
		if room.AllowMultiple {
			flags += " [multi]"
		}
		fmt.Printf("%2d. %s%s — %d votes\n    id: %s\n", i+1, room.Title, flags, room.TotalVotes, room.ID)
	}

	input, ok := ui.readLine("Open number (empty to go back): ")
	if !ok || input == "" {
		return nil
	}
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 || n > len(list.Rooms) {
		fmt.Println("Not a listed poll")
		return nil
	}
	return openPoll(ctx, a, ui, list.Rooms[n-1].ID, "")
}

func openPoll(ctx context.Context, a *app.App, ui *console, id model.RoomID, shareToken string) error {
	sess := a.NewSession(usecase_session.WithUpdateHook(func(snap model.Results) {
		fmt.Printf("\n[live] %s\n", tallyLine(snap))
	}))
	defer sess.Close()

	state, err := sess.Load(ctx, id, model.Credentials{ShareToken: shareToken})
	if err != nil {
		if errors.Is(err, usecase_session.ErrRoomNotFound) {
			fmt.Println("This poll does not exist or has expired.")
			return nil
		}
		return err
	}

	for state == model.StatePassword {
		password, ok := ui.readLine("This poll is protected. Password (empty to cancel): ")
		if !ok || password == "" {
			return nil
		}
		state, err = sess.SubmitPassword(ctx, password)
		if err != nil {
			if errors.Is(err, usecase_session.ErrWrongPassword) {
				fmt.Println("Wrong password, try again.")
				continue
			}
			return err
		}
	}

	room := sess.Room()
	printRoom(room)
	rememberRoom(ctx, a, room, shareToken)

	if state == model.StateVoting {
		if err := promptVote(ctx, sess, ui, room); err != nil {
			return err
		}
	}

	printResults(sess.Room(), sess.Results())
	printComments(sess.Comments())

	for {
		input, ok := ui.readLine("\n[c] comment, [r] refresh view, [Enter] back: ")
		if !ok || input == "" {
			return nil
		}
		switch input {
		case "c":
			content, _ := ui.readLine("Comment: ")
			if content == "" {
				continue
			}
			nickname, _ := ui.readLine("Nickname (optional): ")
			if _, err := sess.Comment(ctx, content, nickname); err != nil {
				fmt.Printf("Could not post comment: %v\n", err)
			}
		case "r":
			printResults(sess.Room(), sess.Results())
			printComments(sess.Comments())
		}
	}
}

func promptVote(ctx context.Context, sess *usecase_session.Session, ui *console, room *model.Room) error {
	for {
		hint := "one option number"
		if room.AllowMultiple {
			hint = "option numbers separated by spaces"
		}
		input, ok := ui.readLine(fmt.Sprintf("Your choice (%s, empty to skip): ", hint))
		if !ok || input == "" {
			return nil
		}

		selection, err := parseSelection(room, input)
		if err != nil {
			fmt.Printf("%v\n", err)
			continue
		}

		err = sess.Vote(ctx, selection)
		switch {
		case err == nil, errors.Is(err, usecase_vote.ErrAlreadyVoted):
			// Notifier already told the user.
			return nil
		case errors.Is(err, usecase_vote.ErrEmptySelection),
			errors.Is(err, usecase_vote.ErrMultipleNotAllowed),
			errors.Is(err, usecase_vote.ErrUnknownOption),
			errors.Is(err, usecase_vote.ErrDuplicateOption):
			fmt.Printf("%v\n", err)
		default:
			fmt.Printf("Vote failed, you can retry: %v\n", err)
		}
	}
}

func parseSelection(room *model.Room, input string) ([]string, error) {
	fields := strings.Fields(input)
	selection := make([]string, 0, len(fields))
	for _, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil || n < 1 || n > len(room.Options) {
			return nil, fmt.Errorf("no option %q", field)
		}
		selection = append(selection, room.Options[n-1])
	}
	return selection, nil
}

func createPoll(ctx context.Context, a *app.App, ui *console) error {
	title, ok := ui.readLine("Title: ")
	if !ok || title == "" {
		return nil
	}

	rawOptions, _ := ui.readLine("Options (comma separated, at least 2): ")
	var options []string
	for _, option := range strings.Split(rawOptions, ",") {
		if option = strings.TrimSpace(option); option != "" {
			options = append(options, option)
		}
	}
	if len(options) < 2 {
		fmt.Println("A poll needs at least 2 options.")
		return nil
	}

	multi, _ := ui.readLine("Allow multiple selections? [y/N]: ")
	password, _ := ui.readLine("Password (empty for public): ")
	rawTags, _ := ui.readLine("Tags (comma separated, optional): ")
	var tags []string
	for _, tag := range strings.Split(rawTags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}

	ttlHours := 24
	if raw, _ := ui.readLine("Open for how many hours? [24]: "); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			ttlHours = n
		}
	}

	resp, err := a.API.CreateRoom(ctx, infra_rest.CreateRoomRequest{
		Title:         title,
		Options:       options,
		Password:      password,
		TTL:           ttlHours * 3600,
		Tags:          tags,
		AllowMultiple: strings.EqualFold(multi, "y"),
	})
	if err != nil {
		return err
	}

	created := time.Now().UTC()
	expires := created.Add(time.Duration(ttlHours) * time.Hour)
	rememberRecord(ctx, a, infra_history.Record{
		RoomID:        resp.ID,
		Title:         title,
		Tags:          tags,
		HasPassword:   password != "",
		AllowMultiple: strings.EqualFold(multi, "y"),
		ShareToken:    resp.ShareToken,
		CreatedAt:     created,
		ExpiresAt:     &expires,
	})

	fmt.Printf("\nPoll created!\nid: %s\n", resp.ID)
	if resp.ShareToken != "" {
		fmt.Printf("share link token: %s\n", resp.ShareToken)
	}
	return nil
}

func myPolls(ctx context.Context, a *app.App, ui *console) error {
	// Drop entries whose room the backend no longer knows.
	if err := a.History.PruneMissing(ctx, func(ctx context.Context, id model.RoomID) error {
		_, err := a.API.Room(ctx, id)
		return err
	}); err != nil {
		fmt.Printf("history check incomplete: %v\n", err)
	}

	records, err := a.History.List(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No polls in your history yet.")
		return nil
	}

	fmt.Printf("\nYour polls (%d):\n", len(records))
	for i, rec := range records {
		flags := ""
		if rec.HasPassword {
			flags += " 🔒"
		}
		if rec.AllowMultiple {
			flags += " [multi]"
		}
		fmt.Printf("%2d. %s%s — %d votes (%s)\n", i+1, rec.Title, flags, rec.TotalVotes,
			rec.CreatedAt.Local().Format("2006-01-02"))
	}

	input, ok := ui.readLine("Open number, 'd <number>' to delete, empty to go back: ")
	if !ok || input == "" {
		return nil
	}

	if rest, found := strings.CutPrefix(input, "d "); found {
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil || n < 1 || n > len(records) {
			fmt.Println("Not a listed poll")
			return nil
		}
		return a.History.Remove(ctx, records[n-1].RoomID)
	}

	n, err := strconv.Atoi(input)
	if err != nil || n < 1 || n > len(records) {
		fmt.Println("Not a listed poll")
		return nil
	}
	rec := records[n-1]
	return openPoll(ctx, a, ui, rec.RoomID, rec.ShareToken)
}

func rememberRoom(ctx context.Context, a *app.App, room *model.Room, shareToken string) {
	rememberRecord(ctx, a, infra_history.Record{
		RoomID:        room.ID,
		Title:         room.Title,
		Tags:          room.Tags,
		HasPassword:   room.HasPassword,
		AllowMultiple: room.AllowMultiple,
		TotalVotes:    room.TotalVotes,
		ShareToken:    shareToken,
		CreatedAt:     room.CreatedAt,
		ExpiresAt:     room.ExpiresAt,
	})
}

func rememberRecord(ctx context.Context, a *app.App, rec infra_history.Record) {
	if err := a.History.Add(ctx, rec); err != nil {
		fmt.Printf("history not updated: %v\n", err)
	}
}

func printRoom(room *model.Room) {
	fmt.Printf("\n%s\n", room.Title)
	if room.HasPassword {
		fmt.Println("🔒 protected poll")
	}
	if len(room.Tags) > 0 {
		fmt.Printf("tags: #%s\n", strings.Join(room.Tags, " #"))
	}
	if room.ExpiresAt != nil {
		fmt.Printf("closes: %s\n", room.ExpiresAt.Local().Format(time.RFC822))
	}
	for i, option := range room.Options {
		fmt.Printf("  %d. %s\n", i+1, option)
	}
}

func printResults(room *model.Room, results *model.Results) {
	if results == nil {
		fmt.Println("\nResults pending...")
		return
	}

	fmt.Printf("\n%s\n", tallyLine(*results))
	total := results.Total()
	for _, option := range room.Options {
		votes := results.Count(option)
		percent := 0.0
		if total > 0 {
			percent = float64(votes) / float64(total) * 100
		}
		bar := strings.Repeat("█", int(percent/5))
		fmt.Printf("  %-24s %3.0f%% %s (%d)\n", option, percent, bar, votes)
	}
}

func tallyLine(results model.Results) string {
	options := make([]string, 0, len(results.Tally))
	for option := range results.Tally {
		options = append(options, option)
	}
	sort.Strings(options)

	parts := make([]string, 0, len(options))
	for _, option := range options {
		parts = append(parts, fmt.Sprintf("%s %d", option, results.Tally[option]))
	}
	return fmt.Sprintf("%s — %d vote(s)", strings.Join(parts, " | "), results.Total())
}

func printComments(comments []model.Comment) {
	fmt.Printf("\nComments (%d):\n", len(comments))
	for _, comment := range comments {
		nickname := comment.Nickname
		if nickname == "" {
			nickname = "anonymous"
		}
		fmt.Printf("  %s · %s\n    %s\n", nickname,
			comment.CreatedAt.Local().Format("Jan 2 15:04"), comment.Content)
	}
}
