package metadata

import (
	"os"
	"strconv"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
)

func init() {
	exif.RegisterParsers(mknote.All...)
}

var exifFields = []exif.FieldName{
	exif.Make, exif.Model, exif.Software, exif.Artist, exif.Copyright,
	exif.ExposureTime, exif.FNumber, exif.ISOSpeedRatings, exif.FocalLength,
	exif.DateTimeOriginal, exif.Orientation,
}

// ExtractEXIF reads the common camera tags from a JPEG or TIFF-based file.
// Values are the tag's string form with surrounding quotes removed.
func ExtractEXIF(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return nil, err
	}

	meta := make(map[string]string)
	for _, name := range exifFields {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		if v := strings.TrimSpace(strings.Trim(tag.String(), `"`)); v != "" {
			meta[string(name)] = v
		}
	}
	if lat, long, err := x.LatLong(); err == nil {
		meta["GPSLatitude"] = strconv.FormatFloat(lat, 'f', 6, 64)
		meta["GPSLongitude"] = strconv.FormatFloat(long, 'f', 6, 64)
	}
	return meta, nil
}
