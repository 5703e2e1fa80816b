package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"Replayer/core/compilation"
	"Replayer/core/media"
	"Replayer/model"
)

var (
	cuesFile    string
	cuesFadeIn  int
	cuesPreRoll float64
	cuesNoFade  bool
)

var cuesCmd = &cobra.Command{
	Use:   "cues",
	Short: "校验合集文件并列出 cue",
	Long:  `校验合集文件（助记键格式与唯一性），列出每个 cue 的时间、助记键、小节位置和预卷起点`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		settings := cfg.Playback.Settings()
		flags := cmd.Flags()
		if flags.Changed("fade-in") {
			settings.FadeInDuration = cuesFadeIn
		}
		if flags.Changed("pre-roll") {
			settings.DefaultPreRollDuration = cuesPreRoll
		}
		if cuesNoFade {
			settings.AddFadeInPreRoll = false
		}

		c, err := compilation.LoadFile(cuesFile)
		if err != nil {
			return err
		}
		printCues(cmd.OutOrStdout(), c, settings)
		return nil
	},
}

func printCues(out io.Writer, c *model.Compilation, settings model.Settings) {
	fmt.Fprintf(out, "合集: %s (%s), %d 个音轨\n\n", c.ID, c.Title, len(c.Tracks))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRACK\tCUE\tTIME\tSHORTCUT\tMEASURE\tPRE-ROLL\tDESCRIPTION")
	for _, tr := range c.Tracks {
		for _, cue := range tr.Cues {
			measure := "-"
			if cue.Metrical != nil {
				measure = cue.Metrical.String()
			}
			shortcut := cue.Shortcut
			if shortcut == "" {
				shortcut = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%.3f\t%s\t%s\t%.3f\t%s\n",
				tr.ID, cue.ID, cue.Time, shortcut, measure, media.PreRollStart(cue.Time, settings), cue.Description)
		}
	}
	tw.Flush()
}

func init() {
	cuesCmd.Flags().StringVarP(&cuesFile, "file", "f", "compilation.json", "合集文件")
	cuesCmd.Flags().IntVar(&cuesFadeIn, "fade-in", 1000, "淡入时长 (ms)")
	cuesCmd.Flags().Float64Var(&cuesPreRoll, "pre-roll", 0, "默认预卷时长 (秒)")
	cuesCmd.Flags().BoolVar(&cuesNoFade, "no-fade-pre-roll", false, "预卷不包含淡入时长")
	rootCmd.AddCommand(cuesCmd)
}
