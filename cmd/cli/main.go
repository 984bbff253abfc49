package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	c, err := newClient(getAPIURL(), stateDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "company":
		err = handleCompany(c, args)
	case "user":
		err = handleUser(c, args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		os.Exit(1)
	}
}

func handleCompany(c *client, args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: tenantauth company <register|login|rotate-key|revoke-key|delete|plan|profile>")
		return nil
	}

	subCmd, rest := args[0], args[1:]
	switch subCmd {
	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		name := fs.String("name", "", "company name")
		email := fs.String("email", "", "company email")
		password := fs.String("password", "", "company password")
		plan := fs.String("plan", "", "plan (A, B or C)")
		fs.Parse(rest)
		if *name == "" || *email == "" || *password == "" {
			fs.PrintDefaults()
			return fmt.Errorf("name, email and password are required")
		}
		res, err := c.registerCompany(*name, *email, *password, *plan)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Company registered: %s\n  companyId: %s\n  tenantId:  %s\n  apiKey:    %s\n", *name, res.CompanyID, res.TenantID, res.APIKey)
	case "login", "rotate-key", "revoke-key", "delete":
		fs := flag.NewFlagSet(subCmd, flag.ExitOnError)
		email := fs.String("email", "", "company email")
		password := fs.String("password", "", "company password")
		fs.Parse(rest)
		if *email == "" || *password == "" {
			fs.PrintDefaults()
			return fmt.Errorf("email and password are required")
		}
		return c.companyCommand(subCmd, *email, *password)
	case "plan":
		fs := flag.NewFlagSet("plan", flag.ExitOnError)
		email := fs.String("email", "", "company email")
		password := fs.String("password", "", "company password")
		plan := fs.String("plan", "", "new plan (A, B or C)")
		fs.Parse(rest)
		if *email == "" || *password == "" || *plan == "" {
			fs.PrintDefaults()
			return fmt.Errorf("email, password and plan are required")
		}
		if err := c.changePlan(*email, *password, *plan); err != nil {
			return err
		}
		fmt.Printf("✓ Plan changed to %s\n", *plan)
	case "profile":
		fs := flag.NewFlagSet("profile", flag.ExitOnError)
		email := fs.String("email", "", "company email")
		companyID := fs.String("company-id", "", "company ID")
		fs.Parse(rest)
		p, err := c.companyProfile(*email, *companyID)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tEMAIL\tPLAN\tAPI KEY\tCREATED")
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n", p.CompanyName, p.Email, p.Plan, p.HasAPIKey, p.CreatedAt)
		w.Flush()
	default:
		fmt.Printf("unknown company command: %s\n", subCmd)
	}
	return nil
}

func handleUser(c *client, args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: tenantauth user <signup|signin|refresh|logout|me|list>")
		return nil
	}

	subCmd, rest := args[0], args[1:]
	switch subCmd {
	case "signup", "signin":
		fs := flag.NewFlagSet(subCmd, flag.ExitOnError)
		email := fs.String("email", "", "user email")
		username := fs.String("username", "", "username (signup only)")
		password := fs.String("password", "", "password")
		apiKey := fs.String("api-key", "", "tenant API key (saved for later commands)")
		fs.Parse(rest)
		if *email == "" || *password == "" {
			fs.PrintDefaults()
			return fmt.Errorf("email and password are required")
		}
		if *apiKey != "" {
			c.state.APIKey = *apiKey
		}
		if subCmd == "signup" {
			if err := c.signup(*email, *username, *password); err != nil {
				return err
			}
			fmt.Printf("✓ User signed up: %s\n", *email)
			return nil
		}
		if err := c.signin(*email, *password); err != nil {
			return err
		}
		fmt.Printf("✓ Signed in as: %s\n", *email)
	case "refresh":
		if err := c.refresh(); err != nil {
			return err
		}
		fmt.Println("✓ Session refreshed")
	case "logout":
		if err := c.logout(); err != nil {
			return err
		}
		fmt.Println("✓ Logged out")
	case "me":
		u, err := c.me()
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s) role=%s tenant=%s\n", u.Username, u.Email, u.Role, u.TenantID)
	case "list":
		users, err := c.listUsers()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEMAIL\tUSERNAME\tROLE")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.UserID, u.Email, u.Username, u.Role)
		}
		w.Flush()
	default:
		fmt.Printf("unknown user command: %s\n", subCmd)
	}
	return nil
}

// Helper functions
func getAPIURL() string {
	if url := os.Getenv("TENANTAUTH_API"); url != "" {
		return url
	}
	return "http://localhost:4000"
}

func stateDir() string {
	home, _ := os.UserHomeDir()
	return home + "/.tenantauth"
}

func printUsage() {
	fmt.Print(`tenantauth CLI

Usage:
  tenantauth <command> [options]

Commands:
  company  Company operations (register, login, rotate-key, revoke-key, delete, plan, profile)
  user     User operations (signup, signin, refresh, logout, me, list)
  help     Show this help message

Environment Variables:
  TENANTAUTH_API    API endpoint (default: http://localhost:4000)

The API key, access token and refresh cookie are kept in ~/.tenantauth/.

Examples:
  tenantauth company register -name Acme -email a@acme.com -password secret
  tenantauth user signup -api-key <key> -email u@acme.com -password pass
  tenantauth user signin -email u@acme.com -password pass
  tenantauth user me
`)
}
