// Command intake is a terminal front end for the intake API: it walks
// through the application wizard and can follow an application's chat.
//
//	intake [-api URL] apply
//	intake [-api URL] chat -phone +49... -app 12
//	intake [-api URL] forgot -phone +49...
//	intake [-api URL] reset -phone +49... -code 123456
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/medconcierge/internal/client"
	"github.com/iliyamo/medconcierge/internal/model"
	"github.com/iliyamo/medconcierge/internal/service"
	"github.com/iliyamo/medconcierge/internal/wizard"
)

func main() {
	_ = godotenv.Load()

	api := flag.String("api", envOr("INTAKE_API_URL", "http://localhost:8080"), "API base URL")
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: intake [-api URL] apply|chat|forgot|reset [flags]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := client.New(*api, nil)
	in := bufio.NewScanner(os.Stdin)
	args := flag.Args()[1:]

	var err error
	switch flag.Arg(0) {
	case "apply":
		err = apply(ctx, c, in)
	case "chat":
		err = chat(ctx, c, in, args)
	case "forgot":
		err = forgot(ctx, c, args)
	case "reset":
		err = reset(ctx, c, in, args)
	default:
		err = fmt.Errorf("unknown command %q", flag.Arg(0))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func ask(in *bufio.Scanner, label, current string) string {
	if current != "" {
		fmt.Printf("%s [%s]: ", label, current)
	} else {
		fmt.Printf("%s: ", label)
	}
	if !in.Scan() {
		return current
	}
	if v := strings.TrimSpace(in.Text()); v != "" {
		return v
	}
	return current
}

// askSecret reads a password exactly as typed.
func askSecret(in *bufio.Scanner, label string) string {
	fmt.Printf("%s: ", label)
	if !in.Scan() {
		return ""
	}
	return strings.TrimSuffix(in.Text(), "\r")
}

func yes(in *bufio.Scanner, label string, current bool) bool {
	def := "n"
	if current {
		def = "y"
	}
	v := strings.ToLower(ask(in, label+" (y/n)", def))
	return v == "y" || v == "yes"
}

func printErrors(err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		for _, d := range verr.Details {
			fmt.Printf("  - %s %s\n", d.Field, d.Message)
		}
		return
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && len(apiErr.Details) > 0 {
		for _, d := range apiErr.Details {
			fmt.Printf("  - %s %s\n", d.Field, d.Message)
		}
		return
	}
	fmt.Println("  -", err)
}

func fill(w *wizard.Wizard, in *bufio.Scanner) {
	switch w.Step() {
	case wizard.StepIdentity:
		id := &w.Identity
		id.FirstName = ask(in, "First name", id.FirstName)
		id.LastName = ask(in, "Last name", id.LastName)
		id.Email = ask(in, "Email", id.Email)
		id.Phone = ask(in, "Phone (+49...)", id.Phone)
		id.Password = askSecret(in, "Password")
		id.ConfirmPassword = askSecret(in, "Confirm password")
	case wizard.StepQuestionnaire:
		q := &w.Questionnaire
		q.CurrentLocation = ask(in, "Where are you now? (germany/eu/other)", q.CurrentLocation)
		if q.CurrentLocation == model.LocationGermany {
			q.HasInsurance = ask(in, "German health insurance? (yes/no/not_sure)", q.HasInsurance)
		} else {
			q.CanComeToGermany = ask(in, "Can you travel to Germany? (yes/no/need_help)", q.CanComeToGermany)
			q.IsEuResident = ask(in, "EU resident? (yes/no/unknown)", q.IsEuResident)
		}
	case wizard.StepServices:
		s := &w.Services
		s.Charter = yes(in, "Charter flight", s.Charter)
		s.Transport = yes(in, "Ground transport", s.Transport)
		s.Visa = yes(in, "Visa support", s.Visa)
		s.Interpreter = yes(in, "Interpreter", s.Interpreter)
		s.Hotel = yes(in, "Hotel", s.Hotel)
		s.Notes = ask(in, "Notes", s.Notes)
		fmt.Printf("(%d characters left)\n", s.Remaining())
	}
}

func apply(ctx context.Context, c *client.Client, in *bufio.Scanner) error {
	w := wizard.New()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Printf("\n== Step %d of 3: %s ==\n", int(w.Step())+1, w.Step())
		fill(w, in)
		if err := w.Next(); err != nil {
			fmt.Println("Please fix:")
			printErrors(err)
			continue
		}
		if !w.Last() {
			continue
		}
		if a := ask(in, "Submit, go back or edit? (s/b/e)", "s"); a == "b" {
			w.Back()
			continue
		} else if a == "e" {
			continue
		}

		req, err := w.Submit()
		if err != nil {
			fmt.Println("Please fix:")
			printErrors(err)
			continue
		}
		res, err := c.Submit(ctx, req)
		if err != nil {
			fmt.Println("Submission failed:")
			printErrors(err)
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.Status >= 500 {
				return err
			}
			continue
		}
		fmt.Printf("\nThank you! Your application number is %s.\n", res.ApplicationNum)
		return countdown(ctx, wizard.RedirectDelay)
	}
}

func countdown(ctx context.Context, d time.Duration) error {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for left := int(d / time.Second); left > 0; left-- {
		fmt.Printf("\rReturning in %d s ", left)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	fmt.Println()
	return nil
}

func chat(ctx context.Context, c *client.Client, in *bufio.Scanner, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	phone := fs.String("phone", "", "login phone")
	app := fs.Uint64("app", 0, "application id")
	_ = fs.Parse(args)
	if *phone == "" || *app == 0 {
		return errors.New("chat needs -phone and -app")
	}
	if err := c.Login(ctx, *phone, askSecret(in, "Password")); err != nil {
		return err
	}

	printed := map[uint64]bool{}
	show := func(msgs []model.Message) {
		for _, d := range client.GroupByDay(msgs, time.Local) {
			for _, m := range d.Messages {
				if printed[m.ID] {
					continue
				}
				printed[m.ID] = true
				fmt.Printf("[%s %s] %s: %s\n", d.Date.Format("2006-01-02"), m.CreatedAt.Local().Format("15:04"), m.SenderRole, m.Content)
			}
		}
	}
	th := client.NewThread(c, *app, client.OnChange(show))
	go func() { _ = th.Run(ctx) }()

	fmt.Println("Type a message and press enter. Empty line refreshes, Ctrl-D quits.")
	for in.Scan() {
		text := strings.TrimSpace(in.Text())
		if text == "" {
			if err := th.Refresh(ctx); err != nil {
				printErrors(err)
			}
			continue
		}
		if _, err := th.Send(ctx, text); err != nil {
			printErrors(err)
		}
	}
	return nil
}

func forgot(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("forgot", flag.ExitOnError)
	phone := fs.String("phone", "", "registered phone")
	_ = fs.Parse(args)
	if err := c.ForgotPassword(ctx, *phone); err != nil {
		return err
	}
	fmt.Println("If the number is registered, a code is on its way.")
	return nil
}

func reset(ctx context.Context, c *client.Client, in *bufio.Scanner, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	phone := fs.String("phone", "", "registered phone")
	code := fs.String("code", "", "6-digit code from the SMS")
	_ = fs.Parse(args)
	if _, err := strconv.Atoi(*code); err != nil || len(*code) != 6 {
		return errors.New("reset needs a 6-digit -code")
	}
	if err := c.ResetPassword(ctx, *phone, *code, askSecret(in, "New password")); err != nil {
		return err
	}
	fmt.Println("Password changed. You can log in now.")
	return nil
}
