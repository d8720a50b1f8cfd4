package main

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/systemgarden/habitat/pkg/holstore"
	"github.com/systemgarden/habitat/pkg/timestore"
)

var (
	filePath     = flag.String("file", "", "Container file to export from")
	ringName     = flag.String("ring", "", "Ring name to export")
	password     = flag.String("password", "", "Ring password, if any")
	outPath      = flag.String("out", "", "Output file (default: stdout)")
	manifestPath = flag.String("manifest", "", "YAML manifest of multiple export jobs, in place of -file/-ring/-out")
	dryRun       = flag.Bool("dry-run", false, "Report what would be exported without writing output")
	backupPath   = flag.String("backup", "", "Path to back up the container file before exporting (default: <file>.backup)")
	noBackup     = flag.Bool("no-backup", false, "Skip the backup step entirely")
)

// exportJob is one entry of an export manifest: a container file, the
// ring within it to export, and where to write the result.
type exportJob struct {
	File     string `yaml:"file"`
	Ring     string `yaml:"ring"`
	Password string `yaml:"password"`
	Out      string `yaml:"out"`
}

// record is the newline-delimited JSON shape written per ring entry.
// Payload is base64-encoded since ring records are arbitrary bytes, not
// necessarily valid UTF-8 text.
type record struct {
	Seq     int64  `json:"seq"`
	Time    string `json:"time"`
	Payload string `json:"payload"`
}

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("habitat Ring Export Tool")
	log.Println("========================")

	jobs, err := loadJobs()
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("Dry run: %v", *dryRun)

	total := 0
	for _, job := range jobs {
		n, err := runJob(job)
		if err != nil {
			log.Fatalf("export of %s (%s) failed: %v", job.File, job.Ring, err)
		}
		total += n
	}

	if *dryRun {
		log.Printf("\n[DRY RUN] Would export %d records across %d job(s). No output written.", total, len(jobs))
	} else {
		log.Printf("\n✓ Exported %d records across %d job(s) successfully!", total, len(jobs))
	}
}

// loadJobs resolves the export job list either from -manifest, or from
// the single -file/-ring/-out/-password flag set.
func loadJobs() ([]exportJob, error) {
	if *manifestPath != "" {
		f, err := os.Open(*manifestPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest: %v", err)
		}
		defer f.Close()

		var jobs []exportJob
		dec := yaml.NewDecoder(f)
		for {
			var j exportJob
			if err := dec.Decode(&j); err != nil {
				if err == io.EOF {
					break
				}
				return nil, fmt.Errorf("failed to parse manifest: %v", err)
			}
			jobs = append(jobs, j)
		}
		return jobs, nil
	}

	if *filePath == "" || *ringName == "" {
		return nil, fmt.Errorf("either -manifest, or both -file and -ring, are required")
	}
	return []exportJob{{File: *filePath, Ring: *ringName, Password: *password, Out: *outPath}}, nil
}

func runJob(job exportJob) (int, error) {
	if _, err := os.Stat(job.File); os.IsNotExist(err) {
		return 0, fmt.Errorf("container file not found at %s", job.File)
	}

	log.Printf("Container: %s", job.File)
	log.Printf("Ring:      %s", job.Ring)

	if !*dryRun && !*noBackup {
		backupFile := *backupPath
		if backupFile == "" {
			backupFile = job.File + ".backup"
		}
		log.Printf("Creating backup: %s", backupFile)
		if err := copyFile(job.File, backupFile); err != nil {
			return 0, fmt.Errorf("failed to create backup: %v", err)
		}
		log.Println("✓ Backup created successfully")
	}

	hol, err := holstore.Open(job.File)
	if err != nil {
		return 0, fmt.Errorf("failed to open container: %v", err)
	}
	defer hol.Close()

	ring, err := timestore.Open(hol, job.Ring, job.Password)
	if err != nil {
		return 0, fmt.Errorf("failed to open ring %s: %v", job.Ring, err)
	}
	defer ring.Close()

	return exportRing(ring, *dryRun, job.Out)
}

// exportRing reads every live record from oldest to youngest and writes
// it as one newline-delimited JSON object per line. The read is entirely
// non-mutating: no cursor position or descriptor field is changed.
func exportRing(ring *timestore.Ring, dryRun bool, outPath string) (int, error) {
	oldest, err := ring.Oldest()
	if err != nil {
		log.Println("✓ Ring is empty - nothing to export")
		return 0, nil
	}
	youngest, err := ring.Youngest()
	if err != nil {
		return 0, err
	}

	if dryRun {
		log.Printf("[DRY RUN] Would export records %d through %d", oldest, youngest)
		return int(youngest-oldest) + 1, nil
	}

	out := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		out = f
	}

	w := bufio.NewWriter(out)
	defer w.Flush()

	enc := json.NewEncoder(w)
	count := 0
	for seq := oldest; seq <= youngest; seq++ {
		payload, at, err := ring.Get(seq)
		if err != nil {
			log.Printf("⚠ skipping seq %d: %v", seq, err)
			continue
		}
		rec := record{
			Seq:     seq,
			Time:    at.Format("2006-01-02T15:04:05.999999999Z07:00"),
			Payload: base64.StdEncoding.EncodeToString(payload),
		}
		if err := enc.Encode(rec); err != nil {
			return count, err
		}
		count++
		if count%1000 == 0 {
			log.Printf("  exported %d/%d...", count, youngest-oldest+1)
		}
	}
	return count, nil
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0600)
}
