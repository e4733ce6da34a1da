package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/iliyamo/lost-and-found/internal/app"
	"github.com/iliyamo/lost-and-found/internal/chat"
	"github.com/iliyamo/lost-and-found/internal/model"
	"github.com/iliyamo/lost-and-found/internal/service"
)

// client is the state shared by one command invocation.
type client struct {
	rt     *app.Runtime
	user   *model.User // signed-in user; nil for commands that need none
	out    *console
	in     io.Reader
	errw   io.Writer
	notify chat.Notifier
}

type command struct {
	signedIn bool
	admin    bool
	run      func(ctx context.Context, c *client, args []string) error
}

var commands = map[string]command{
	"register": {run: cmdRegister},
	"login":    {run: cmdLogin},
	"logout":   {run: cmdLogout},
	"whoami":   {signedIn: true, run: cmdWhoami},
	"profile":  {signedIn: true, run: cmdProfile},
	"password": {signedIn: true, run: cmdPassword},

	"items":    {run: cmdItems},
	"post":     {signedIn: true, run: cmdPost},
	"claim":    {signedIn: true, run: cmdClaim},
	"unclaim":  {signedIn: true, run: cmdUnclaim},
	"contacts": {run: cmdContacts},

	"chat":    {signedIn: true, run: cmdChat},
	"replies": {signedIn: true, run: cmdReplies},
	"support": {signedIn: true, run: cmdSupport},
	"unread":  {signedIn: true, run: cmdUnread},

	"inbox":   {signedIn: true, admin: true, run: cmdInbox},
	"users":   {signedIn: true, admin: true, run: cmdUsers},
	"edit":    {signedIn: true, admin: true, run: cmdEdit},
	"ban":     {signedIn: true, admin: true, run: cmdBan},
	"unban":   {signedIn: true, admin: true, run: cmdUnban},
	"delete":  {signedIn: true, admin: true, run: cmdDelete},
	"restore": {signedIn: true, admin: true, run: cmdRestore},
	"stats":   {signedIn: true, admin: true, run: cmdStats},
}

// flags returns a flag set for one command. synopsis is printed on -h and
// on parse errors.
func (c *client) flags(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errw)
	fs.Usage = func() {
		fmt.Fprintf(c.errw, "Usage: lostfound %s %s\n", name, synopsis)
		fs.PrintDefaults()
	}
	return fs
}

// parse parses args and checks the number of positional arguments.
func (c *client) parse(fs *flag.FlagSet, args []string, minArgs, maxArgs int) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if n := fs.NArg(); n < minArgs || n > maxArgs {
		fs.Usage()
		return errUsage
	}
	return nil
}

func parseItemID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid item id %q", s)
	}
	return id, nil
}

func (c *client) printUser(u *model.User) {
	c.out.printf("%s  %s  %s  role=%s  status=%s\n", u.ID, u.Email, u.DisplayName(), u.Role().Name(), u.Status())
}

func cmdRegister(ctx context.Context, c *client, args []string) error {
	fs := c.flags("register", "-email <e> -password <p> [-name <n>] [-role 2|3|4]")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	name := fs.String("name", "", "full name")
	role := fs.Int("role", int(model.RoleUser), "role code")
	if err := c.parse(fs, args, 0, 0); err != nil {
		return err
	}
	u, err := c.rt.Auth.Register(ctx, *email, *password, *name, model.Role(*role))
	if err != nil {
		return err
	}
	if _, err := c.rt.Auth.SignIn(ctx, *email, *password); err != nil {
		return err
	}
	c.notify.Success("Registered and signed in as " + u.DisplayName())
	return nil
}

func cmdLogin(ctx context.Context, c *client, args []string) error {
	fs := c.flags("login", "-email <e> -password <p>")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := c.parse(fs, args, 0, 0); err != nil {
		return err
	}
	sess, err := c.rt.Auth.SignIn(ctx, *email, *password)
	if err != nil {
		return err
	}
	c.notify.Success(fmt.Sprintf("Signed in as %s (%s)", sess.User.DisplayName(), sess.User.Role().Name()))
	return nil
}

func cmdLogout(ctx context.Context, c *client, args []string) error {
	if err := c.parse(c.flags("logout", ""), args, 0, 0); err != nil {
		return err
	}
	if err := c.rt.Auth.SignOut(ctx); err != nil {
		return err
	}
	c.notify.Success("Signed out")
	return nil
}

func cmdWhoami(_ context.Context, c *client, args []string) error {
	if err := c.parse(c.flags("whoami", ""), args, 0, 0); err != nil {
		return err
	}
	c.printUser(c.user)
	return nil
}

func cmdProfile(ctx context.Context, c *client, args []string) error {
	fs := c.flags("profile", "-name <full name>")
	name := fs.String("name", "", "new full name")
	if err := c.parse(fs, args, 0, 0); err != nil {
		return err
	}
	u, err := c.rt.Auth.UpdateProfile(ctx, c.user.ID, *name)
	if err != nil {
		return err
	}
	c.printUser(u)
	return nil
}

func cmdPassword(ctx context.Context, c *client, args []string) error {
	fs := c.flags("password", "-current <p> -new <p>")
	current := fs.String("current", "", "current password")
	next := fs.String("new", "", "new password")
	if err := c.parse(fs, args, 0, 0); err != nil {
		return err
	}
	if err := c.rt.Auth.ChangePassword(ctx, c.user.ID, *current, *next); err != nil {
		return err
	}
	c.notify.Success("Password changed")
	return nil
}

func cmdItems(ctx context.Context, c *client, args []string) error {
	fs := c.flags("items", "[-status lost|found] [-all] [-mine] [-limit n]")
	status := fs.String("status", "", "only lost or found items")
	all := fs.Bool("all", false, "include claimed items")
	mine := fs.Bool("mine", false, "only items you posted")
	limit := fs.Int("limit", 50, "maximum number of items")
	if err := c.parse(fs, args, 0, 0); err != nil {
		return err
	}
	f := service.ItemFilter{Status: *status, IncludeClaimed: *all, Limit: *limit}
	if *mine {
		u, err := c.rt.Auth.Initialize(ctx)
		if err != nil {
			return err
		}
		if u == nil {
			return errors.New("not signed in")
		}
		f.OwnerID = u.ID
		f.IncludeClaimed = true
	}
	items, err := c.rt.Items.List(ctx, f)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		c.notify.Info("No items")
		return nil
	}

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTITLE\tPOSTED\tCLAIMED")
	for _, it := range items {
		claimed := "-"
		if it.Claimed() {
			claimed = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", it.ID, it.Status, it.Title, it.CreatedAt.Local().Format(time.DateOnly), claimed)
	}
	tw.Flush()
	c.out.printf("%s", b.String())
	return nil
}

func cmdPost(ctx context.Context, c *client, args []string) error {
	fs := c.flags("post", "-title <t> -desc <d> -status lost|found")
	var in service.NewItem
	fs.StringVar(&in.Title, "title", "", "item title")
	fs.StringVar(&in.Description, "desc", "", "item description")
	fs.StringVar(&in.Status, "status", "", "lost or found")
	if err := c.parse(fs, args, 0, 0); err != nil {
		return err
	}
	it, err := c.rt.Items.Create(ctx, in, c.user.ID)
	if err != nil {
		return err
	}
	c.notify.Success(fmt.Sprintf("Posted item %d", it.ID))
	return nil
}

func cmdClaim(ctx context.Context, c *client, args []string) error {
	fs := c.flags("claim", "<item id>")
	if err := c.parse(fs, args, 1, 1); err != nil {
		return err
	}
	id, err := parseItemID(fs.Arg(0))
	if err != nil {
		return err
	}
	if _, err := c.rt.Items.Claim(ctx, id, c.user.ID); err != nil {
		return err
	}
	c.notify.Success("Item claimed")
	return nil
}

func cmdUnclaim(ctx context.Context, c *client, args []string) error {
	fs := c.flags("unclaim", "<item id>")
	if err := c.parse(fs, args, 1, 1); err != nil {
		return err
	}
	id, err := parseItemID(fs.Arg(0))
	if err != nil {
		return err
	}
	it, err := c.rt.Items.Get(ctx, id)
	if err != nil {
		return err
	}
	if it.UserID != c.user.ID && it.ClaimedBy != c.user.ID && !c.user.IsAdmin() {
		return errors.New("only the poster or the claimer can unclaim an item")
	}
	if _, err := c.rt.Items.Unclaim(ctx, id); err != nil {
		return err
	}
	c.notify.Success("Item unclaimed")
	return nil
}

func cmdContacts(ctx context.Context, c *client, args []string) error {
	fs := c.flags("contacts", "<item id>")
	if err := c.parse(fs, args, 1, 1); err != nil {
		return err
	}
	id, err := parseItemID(fs.Arg(0))
	if err != nil {
		return err
	}
	n, err := c.rt.Conversations.CountDistinctContacts(ctx, id)
	if err != nil {
		return err
	}
	c.out.printf("%d people asked about item %d\n", n, id)
	return nil
}

// incoming prints messages pushed by the other participant.
func (c *client) incoming(m model.Message) { c.out.message(c.user.ID, m) }

func cmdChat(ctx context.Context, c *client, args []string) error {
	fs := c.flags("chat", "<item id>")
	if err := c.parse(fs, args, 1, 1); err != nil {
		return err
	}
	id, err := parseItemID(fs.Arg(0))
	if err != nil {
		return err
	}
	it, err := c.rt.Items.Get(ctx, id)
	if err != nil {
		return err
	}
	uc := chat.NewUserChat(c.rt.Conversations, c.rt.Messages, c.user.ID, c.notify, c.incoming)
	defer uc.Close()
	if err := uc.Contact(ctx, *it); err != nil {
		return err
	}
	c.out.printf("== %s ==\n", it.Title)
	return converse(ctx, c, uc, uc.Send)
}

func cmdSupport(ctx context.Context, c *client, args []string) error {
	if err := c.parse(c.flags("support", ""), args, 0, 0); err != nil {
		return err
	}
	if c.user.IsAdmin() {
		return errors.New("admins answer support from the inbox command")
	}
	uc := chat.NewUserChat(c.rt.Conversations, c.rt.Messages, c.user.ID, c.notify, c.incoming)
	defer uc.Close()
	if err := uc.ContactSupport(ctx); err != nil {
		return err
	}
	c.out.printf("== Support ==\n")
	return converse(ctx, c, uc, uc.Send)
}

func cmdReplies(ctx context.Context, c *client, args []string) error {
	fs := c.flags("replies", "<item id> [n]")
	if err := c.parse(fs, args, 1, 2); err != nil {
		return err
	}
	id, err := parseItemID(fs.Arg(0))
	if err != nil {
		return err
	}
	it, err := c.rt.Items.Get(ctx, id)
	if err != nil {
		return err
	}
	if it.UserID != c.user.ID && !c.user.IsAdmin() {
		return errors.New("only the poster can read replies to an item")
	}

	ac := chat.NewAdminChat(c.rt.Conversations, c.rt.Messages, c.user.ID, c.notify, c.incoming)
	defer ac.Close()
	convs, err := ac.OpenConversations(ctx, *it)
	if err != nil {
		return err
	}
	if fs.NArg() == 1 {
		for i, conv := range convs {
			n, err := c.rt.Messages.UnreadForConversation(ctx, conv.ID, c.user.ID)
			if err != nil {
				return err
			}
			c.out.printf("%d. %s  (%d unread)\n", i+1, summaryName(conv.Sender, conv.SenderID), n)
		}
		return nil
	}

	n, err := strconv.Atoi(fs.Arg(1))
	if err != nil || n < 1 || n > len(convs) {
		return fmt.Errorf("no conversation %q; pick 1 to %d", fs.Arg(1), len(convs))
	}
	conv := convs[n-1]
	if err := ac.Select(ctx, conv); err != nil {
		return err
	}
	c.out.printf("== %s: %s ==\n", it.Title, summaryName(conv.Sender, conv.SenderID))
	return converse(ctx, c, ac, ac.Send)
}

func summaryName(p *model.UserSummary, id string) string {
	switch {
	case p == nil:
		return id
	case p.FullName != "":
		return p.FullName
	}
	return p.Email
}

func cmdUnread(ctx context.Context, c *client, args []string) error {
	if err := c.parse(c.flags("unread", ""), args, 0, 0); err != nil {
		return err
	}
	badge := chat.NewUnreadBadge(c.rt.Messages, c.notify)
	if err := badge.Refresh(ctx, c.user.ID); err != nil {
		return err
	}
	c.out.printf("%d unread\n", badge.Total())
	counts := badge.Counts()
	for _, id := range slices.Sorted(maps.Keys(counts)) {
		if n := counts[id]; n > 0 {
			c.out.printf("  %s  %d\n", id, n)
		}
	}
	return nil
}

func cmdInbox(ctx context.Context, c *client, args []string) error {
	fs := c.flags("inbox", "[-page n] [-size n] [-open n] [-follow]")
	page := fs.Int("page", service.DefaultPage, "page number")
	size := fs.Int("size", service.DefaultPageSize, "conversations per page")
	open := fs.Int("open", 0, "answer the n-th conversation of the page")
	follow := fs.Bool("follow", false, "keep running and report new conversations")
	if err := c.parse(fs, args, 0, 0); err != nil {
		return err
	}

	inbox := chat.NewSupportInbox(c.rt.Conversations, c.rt.Messages, c.user.ID, c.notify, c.incoming)
	defer inbox.Close()
	if *follow {
		inbox.OnNewConversation = func(conv model.SupportConversation) {
			c.out.printf("+ %s  %s\n", conv.SenderProfile.Email, conv.ID)
		}
	}
	if err := inbox.Open(ctx); err != nil {
		return err
	}
	if *size != service.DefaultPageSize {
		if err := inbox.ChangePageSize(ctx, *size); err != nil {
			return err
		}
	}
	if *page != service.DefaultPage {
		if err := inbox.GoToPage(ctx, *page); err != nil {
			return err
		}
	}

	p := inbox.Page()
	c.out.printf("Support inbox: page %d of %d, %d conversations\n", p.CurrentPage, max(p.TotalPages, 1), p.TotalCount)
	for i, conv := range p.Conversations {
		c.out.printf("%d. %s  [%d]  %s\n", i+1, conv.SenderProfile.Email, conv.MessageCount, conv.LatestMessage.Message)
	}

	switch {
	case *open > 0:
		if *open > len(p.Conversations) {
			return fmt.Errorf("no conversation %d on this page", *open)
		}
		conv := p.Conversations[*open-1]
		if err := inbox.Select(ctx, conv); err != nil {
			return err
		}
		c.out.printf("== Support: %s ==\n", conv.SenderProfile.Email)
		return converse(ctx, c, inbox, inbox.SendToStudent)
	case *follow:
		<-ctx.Done()
	}
	return nil
}

func cmdUsers(ctx context.Context, c *client, args []string) error {
	if err := c.parse(c.flags("users", ""), args, 0, 0); err != nil {
		return err
	}
	users, err := c.rt.Auth.GetAllUsers(ctx, c.user.ID)
	if err != nil {
		return err
	}
	for i := range users {
		c.printUser(&users[i])
	}
	return nil
}

// idFirst moves a leading positional id behind the flags so that both
// "ban ID -for 24h" and "ban -for 24h ID" parse.
func idFirst(args []string) []string {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return slices.Concat(args[1:], args[:1])
	}
	return args
}

// userCommand runs op on the single user id argument and prints the result.
func userCommand(name string, op func(ctx context.Context, c *client, id string) (*model.User, error)) func(context.Context, *client, []string) error {
	return func(ctx context.Context, c *client, args []string) error {
		fs := c.flags(name, "<user id>")
		if err := c.parse(fs, args, 1, 1); err != nil {
			return err
		}
		u, err := op(ctx, c, fs.Arg(0))
		if err != nil {
			return err
		}
		c.printUser(u)
		return nil
	}
}

var (
	cmdUnban = userCommand("unban", func(ctx context.Context, c *client, id string) (*model.User, error) {
		return c.rt.Auth.UnbanUser(ctx, c.user.ID, id)
	})
	cmdDelete = userCommand("delete", func(ctx context.Context, c *client, id string) (*model.User, error) {
		return c.rt.Auth.DeleteUser(ctx, c.user.ID, id)
	})
	cmdRestore = userCommand("restore", func(ctx context.Context, c *client, id string) (*model.User, error) {
		return c.rt.Auth.RestoreUser(ctx, c.user.ID, id)
	})
)

func cmdEdit(ctx context.Context, c *client, args []string) error {
	fs := c.flags("edit", "<user id> [-name <n>] [-role 1-4]")
	name := fs.String("name", "", "new full name")
	role := fs.Int("role", 0, "new role code")
	args = idFirst(args)
	if err := c.parse(fs, args, 1, 1); err != nil {
		return err
	}
	r := model.Role(*role)
	if r == model.RoleNone {
		u, err := c.rt.Auth.GetUser(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		r = u.Role()
	}
	u, err := c.rt.Auth.EditUser(ctx, c.user.ID, fs.Arg(0), *name, r)
	if err != nil {
		return err
	}
	c.printUser(u)
	return nil
}

func cmdBan(ctx context.Context, c *client, args []string) error {
	fs := c.flags("ban", "<user id> [-for 24h|none|permanent] [-reason <r>]")
	duration := fs.String("for", "", "ban length: a duration such as 24h, none or permanent (default "+service.DefaultBanDuration+")")
	reason := fs.String("reason", "", "reason shown to the user")
	args = idFirst(args)
	if err := c.parse(fs, args, 1, 1); err != nil {
		return err
	}
	u, err := c.rt.Auth.BanUser(ctx, c.user.ID, fs.Arg(0), *duration, *reason)
	if err != nil {
		return err
	}
	c.printUser(u)
	return nil
}

func cmdStats(ctx context.Context, c *client, args []string) error {
	if err := c.parse(c.flags("stats", ""), args, 0, 0); err != nil {
		return err
	}
	s, err := c.rt.Items.Stats(ctx)
	if err != nil {
		return err
	}
	c.out.printf("items %d (lost %d, found %d, resolved %d)\n", s.TotalItems, s.LostItems, s.FoundItems, s.ResolvedItems)
	c.out.printf("posters %d  conversations %d  messages %d\n", s.TotalUsers, s.TotalConversations, s.TotalMessages)
	for _, a := range s.RecentActivity {
		c.out.printf("  %s  %-8s %s\n", a.Timestamp.Local().Format(time.DateTime), a.Type, a.Title)
	}
	return nil
}
