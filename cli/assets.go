package cli

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/javanhut/fxstore/internal/assetstore"
	"github.com/javanhut/fxstore/internal/colors"
	"github.com/javanhut/fxstore/internal/config"
	"github.com/javanhut/fxstore/internal/project"
	"github.com/javanhut/fxstore/internal/tree"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a project",
	Long:  "Creates the project skeleton and a default configuration file in the project directory",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var addCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Add a use of an effect",
	Long: `Adds uses of the audio in <file> for a song.

If the store already holds identical audio under the same name, that effect is
reused. Otherwise the effect is stored under the first free name among
NAME, NAME(1), NAME(2), ...

Examples:
  fxstore add kick.wav --song 7f1c... --name "Kick"
  fxstore add crash.wav --song 7f1c... --count 3`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

var removeCmd = &cobra.Command{
	Use:   "remove <key|name>",
	Short: "Remove a use of an effect",
	Long:  "Removes uses of an effect by a song. The effect is deleted when its last use goes away.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var dropSongCmd = &cobra.Command{
	Use:   "drop-song <song-id>",
	Short: "Remove every use of a song",
	Args:  cobra.ExactArgs(1),
	RunE:  runDropSong,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List effects",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var usageCmd = &cobra.Command{
	Use:   "usage <key|name>",
	Short: "Show which songs use an effect",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsage,
}

var (
	addName  string
	useSong  string
	useCount int
	listSong string
)

func init() {
	addCmd.Flags().StringVarP(&addName, "name", "n", "", "Effect name (default: file name without extension)")
	addCmd.Flags().StringVarP(&useSong, "song", "s", "", "Song ID")
	addCmd.Flags().IntVarP(&useCount, "count", "c", 1, "Number of uses")
	_ = addCmd.MarkFlagRequired("song")

	removeCmd.Flags().StringVarP(&useSong, "song", "s", "", "Song ID")
	removeCmd.Flags().IntVarP(&useCount, "count", "c", 1, "Number of uses")
	_ = removeCmd.MarkFlagRequired("song")

	listCmd.Flags().StringVarP(&listSong, "song", "s", "", "Only effects used by this song")
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(cfg, configPath); err != nil {
			return err
		}
	}
	return withProject(func(p *project.Project) error {
		fmt.Printf("%s %s\n", colors.Success("Initialized project in"), p.Dir())
		return nil
	})
}

func parseSong(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid song ID %q: %w", s, err)
	}
	return id, nil
}

// lookup resolves an effect by storage key first, then by name.
func lookup(s *assetstore.Store, ref string) (*tree.Node, error) {
	if n := s.AssetByKey(ref); n != nil {
		return n, nil
	}
	if n := s.AssetByName(ref); n != nil {
		return n, nil
	}
	return nil, fmt.Errorf("no effect %q", ref)
}

func runAdd(cmd *cobra.Command, args []string) error {
	song, err := parseSong(useSong)
	if err != nil {
		return err
	}
	name := addName
	if name == "" {
		name = baseName(args[0])
	}
	return withProject(func(p *project.Project) error {
		node, err := p.Store().AddUse(assetstore.FileSource(args[0]), name, song, true, useCount)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s as %s (%d uses)\n", colors.Success("Added"), node.Name(), colors.Cyan(node.StorageKey()),
			p.Store().Ledger().Total(node.StorageKey()))
		return nil
	})
}

func runRemove(cmd *cobra.Command, args []string) error {
	song, err := parseSong(useSong)
	if err != nil {
		return err
	}
	return withProject(func(p *project.Project) error {
		node, err := lookup(p.Store(), args[0])
		if err != nil {
			return err
		}
		key := node.StorageKey()
		if err := p.Store().RemoveUse(key, song, true, useCount); err != nil {
			return err
		}
		if left := p.Store().Ledger().Total(key); left > 0 {
			fmt.Printf("Removed %d use(s) of %s, %d left\n", useCount, node.Name(), left)
		} else {
			fmt.Printf("Removed %s, %s\n", node.Name(), colors.Warning("no uses left, effect deleted"))
		}
		return nil
	})
}

func runDropSong(cmd *cobra.Command, args []string) error {
	song, err := parseSong(args[0])
	if err != nil {
		return err
	}
	return withProject(func(p *project.Project) error {
		used := len(p.Store().AssetsForConsumer(song))
		if err := p.Store().RemoveAllUse(song, true); err != nil {
			return err
		}
		fmt.Printf("Dropped %d effect use(s) of song %s\n", used, song)
		return nil
	})
}

func runList(cmd *cobra.Command, args []string) error {
	var only map[string]bool
	var song uuid.UUID
	if listSong != "" {
		var err error
		if song, err = parseSong(listSong); err != nil {
			return err
		}
		only = map[string]bool{}
	}
	return withProject(func(p *project.Project) error {
		if only != nil {
			for _, n := range p.Store().AssetsForConsumer(song) {
				only[n.StorageKey()] = true
			}
		}
		t := newTable("KEY", "NAME", "SIZE", "USES", "DIGEST")
		var total uint64
		count := 0
		for _, a := range p.Store().Assets() {
			if only != nil && !only[a.Key] {
				continue
			}
			size := colors.Red("missing")
			if a.Size >= 0 {
				size = humanize.Bytes(uint64(a.Size))
				total += uint64(a.Size)
			}
			digest := ""
			if a.Node != nil {
				digest = a.Node.Digest().Short()
			}
			t.AddRow(a.Key, a.LongName, size, strconv.Itoa(a.Uses), digest)
			count++
		}
		if count == 0 {
			fmt.Println("No effects")
			return nil
		}
		if err := t.Print(os.Stdout); err != nil {
			return err
		}
		fmt.Printf("\n%d effect(s), %s\n", count, humanize.Bytes(total))
		return nil
	})
}

func runUsage(cmd *cobra.Command, args []string) error {
	return withProject(func(p *project.Project) error {
		node, err := lookup(p.Store(), args[0])
		if err != nil {
			return err
		}
		usage := p.Store().Usage(node.StorageKey())
		songs := make([]uuid.UUID, 0, len(usage))
		for id := range usage {
			songs = append(songs, id)
		}
		sort.Slice(songs, func(i, j int) bool { return songs[i].String() < songs[j].String() })

		fmt.Printf("%s (%s)\n", colors.Bold(node.Name()), node.StorageKey())
		t := newTable("SONG", "USES")
		for _, id := range songs {
			t.AddRow(id.String(), strconv.Itoa(usage[id]))
		}
		return t.Print(os.Stdout)
	})
}
