package nodestore

import (
	"errors"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

func (sc *StoreConfig) checkConfig() error {
	if len(sc.Paths) == 0 {
		return errors.New("no path provided in configuration")
	}

	path := sc.Paths[0] // Currently only the first path is utilized
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return errors.New("path does not exist")
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("path is not a directory")
	}

	usage, err := disk.Usage(path)
	if err != nil {
		return err
	}

	availableSpaceInGB := usage.Free / (1024 * 1024 * 1024)
	if int(availableSpaceInGB) < sc.MinimumFreeSpace {
		return errors.New("not enough space available on disk")
	}

	return nil
}

// displayDiskUsage logs free and used space for the configured paths.
func displayDiskUsage(paths []string) error {
	for _, path := range paths {
		usage, err := disk.Usage(path)
		if err != nil {
			log.WithFields(logrus.Fields{
				"path": path,
			}).Errorf("Error retrieving disk usage stats: %v", err)
			return err
		}

		log.WithFields(logrus.Fields{
			"path":  path,
			"free":  humanize.Bytes(usage.Free),
			"used":  humanize.Bytes(usage.Used),
			"total": humanize.Bytes(usage.Total),
		}).Info("Disk usage for node store path")
	}
	return nil
}
