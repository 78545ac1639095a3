package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/drblury/pulseflow/internal/runtime/codec"
	"github.com/drblury/pulseflow/internal/runtime/jsoncodec"
	"github.com/drblury/pulseflow/internal/runtime/records"
	iotransport "github.com/drblury/pulseflow/transport/io"
)

type decodeOptions struct {
	topic  string
	asJSON bool
}

func newDecodeCommand() *cobra.Command {
	o := &decodeOptions{}

	cmd := &cobra.Command{
		Use:   "decode FILE",
		Short: "Print the records of a file written by the io transport",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return o.run(f, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&o.topic, "topic", "", "Only print records published to this topic")
	cmd.Flags().BoolVar(&o.asJSON, "json", false, "Print each record as a JSON envelope")
	return cmd
}

func (o *decodeOptions) run(r io.Reader, out io.Writer) error {
	n := 0
	err := iotransport.ReadRecords(r, func(rec iotransport.Record) error {
		n++
		if o.topic != "" && rec.Topic != o.topic {
			return nil
		}

		c := codec.Detect(rec.Payload)
		decoded, err := c.Decode(rec.Payload)
		if err != nil {
			return fmt.Errorf("record %d on %s: %w", n, rec.Topic, err)
		}

		if o.asJSON {
			b, err := codec.JSON{}.Encode(decoded)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "%s\n", b)
			return err
		}
		_, err = fmt.Fprintf(out, "%-24s %s\n", rec.Topic, summarize(decoded))
		return err
	})
	return err
}

func summarize(rec records.Record) string {
	switch r := rec.(type) {
	case *records.Message:
		return fmt.Sprintf("events frame=%d message=%d events=%d end_of_frame=%t end_of_run=%t",
			r.FrameIndex, r.MessageID, r.EventCount(), r.EndOfFrame, r.EndOfRun)
	case *records.RunMetadata:
		return fmt.Sprintf("run_start run=%d instrument=%s periods=%d detectors=%d",
			r.RunNumber, r.Instrument, r.NumberOfPeriods, r.SpectrumMap.Len())
	case *records.RunStop:
		return fmt.Sprintf("run_stop run=%d stop=%s", r.RunNumber, r.StopTime.UTC().Format("2006-01-02T15:04:05.000Z"))
	case *records.SampleEnvLog:
		v, _ := jsoncodec.Marshal(r.Value)
		return fmt.Sprintf("sample_env name=%s value=%s", r.Name, v)
	case *records.DetectorSpectrumMap:
		return fmt.Sprintf("spectrum_map detectors=%d", r.Len())
	default:
		return rec.Kind().String()
	}
}
