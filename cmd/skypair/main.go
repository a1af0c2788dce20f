package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	sp "skypair/pkg/skypair"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("skypair", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML pair file")
	pathA := fs.String("a", "", "first image (FITS, or PNG/JPEG/TIFF with an affine mapping in the pair file)")
	pathB := fs.String("b", "", "second image")
	corners := fs.String("corners", "", `sky polygon as "ra,dec;ra,dec;..." in degrees`)
	margin := fs.Int("margin", -1, "crop margin in pixels (default 50)")
	minSize := fs.Int("min-size", -1, "minimum crop height and width (default 100)")
	maxDim := fs.Int("max-dim", -1, "maximum output side before downsampling (default 1024)")
	device := fs.String("device", "", "tensor placement: cpu, cuda, cuda:N, mps")
	out := fs.String("out", "", "proof output file (default proof.png)")
	outDir := fs.String("dir", "", "directory for the normalized per-image PNGs")
	saveDir := fs.String("save-dir", "", "existing directory for intermediate normalization stages")
	debayer := fs.Bool("debayer", false, "treat both inputs as RGGB mosaics")
	caption := fs.Bool("caption", false, "add a legend strip to the proof")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := sp.NewPairConfig()
	if *configPath != "" {
		var err error
		if cfg, err = sp.LoadPairConfig(*configPath); err != nil {
			return err
		}
		fmt.Printf("Loaded pair configuration from %s\n", *configPath)
	}

	// Command line overrides the pair file
	if *pathA != "" {
		cfg.Images.A.Path = *pathA
	}
	if *pathB != "" {
		cfg.Images.B.Path = *pathB
	}
	if *corners != "" {
		poly, err := sp.ParseSkyPolygon(*corners)
		if err != nil {
			return fmt.Errorf("parsing -corners: %w", err)
		}
		cfg.Corners = cfg.Corners[:0]
		for _, p := range poly {
			cfg.Corners = append(cfg.Corners, []float64{p.RA, p.Dec})
		}
	}
	if *margin >= 0 {
		cfg.Crop.Margin = *margin
	}
	if *minSize >= 0 {
		cfg.Crop.MinSize = *minSize
	}
	if *maxDim >= 0 {
		cfg.Normalize.MaxDim = *maxDim
	}
	if *device != "" {
		cfg.Normalize.Device = *device
	}
	if *out != "" {
		cfg.Output.Proof = *out
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	if *saveDir != "" {
		cfg.Output.SaveIntermediate = *saveDir
	}
	if *debayer {
		cfg.Images.A.Debayer, cfg.Images.B.Debayer = true, true
	}
	if *caption {
		cfg.Output.Caption = true
	}
	if err := cfg.FinalizeConfiguration(); err != nil {
		return err
	}

	startTime := time.Now()
	obsA, err := loadObservation("A", cfg.Images.A)
	if err != nil {
		return err
	}
	defer obsA.Image.Close()
	obsB, err := loadObservation("B", cfg.Images.B)
	if err != nil {
		return err
	}
	defer obsB.Image.Close()

	fmt.Printf("Preparing pair over %d sky corners...\n", len(cfg.Polygon))
	result, err := sp.PreparePair(obsA, obsB, cfg.Polygon, cfg.CropParams(), cfg.NormalizeParams())
	if err != nil {
		return fmt.Errorf("preparing pair: %w", err)
	}
	elapsed := time.Since(startTime)

	fmt.Println()
	fmt.Printf("=== Pair Preparation Results (%.1fs) ===\n", elapsed.Seconds())
	printSide(result.A, obsA.Mapping)
	printSide(result.B, obsB.Mapping)
	fmt.Println("==============================")

	if !result.Available() {
		return fmt.Errorf("sky region not usable in both images (A: %s, B: %s)", result.A.Status, result.B.Status)
	}

	if cfg.Output.Dir != "" {
		if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		for _, side := range []sp.PairSide{result.A, result.B} {
			name := filepath.Join(cfg.Output.Dir, strings.ToLower(side.Name)+".png")
			if err := imaging.Save(side.Product.Display, name); err != nil {
				return fmt.Errorf("writing %s: %w", name, err)
			}
		}
	}

	dispA, dispB := sp.ReconcileSizes(result.A.Product.Display, result.B.Product.Display)
	if dispA != result.A.Product.Display || dispB != result.B.Product.Display {
		fmt.Printf("Reconciled display sizes to %dx%d\n", dispA.Bounds().Dx(), dispA.Bounds().Dy())
	}
	proof, err := sp.ComposeProof(dispA, dispB)
	if err != nil {
		return err
	}
	if cfg.Output.Caption {
		proof = sp.CaptionProof(proof, filepath.Base(cfg.Images.A.Path), filepath.Base(cfg.Images.B.Path))
	}
	if err := imaging.Save(proof, cfg.Output.Proof); err != nil {
		return fmt.Errorf("writing proof: %w", err)
	}
	fmt.Printf("Alignment proof written to %s\n", cfg.Output.Proof)
	return nil
}

func loadObservation(name string, src sp.ImageSource) (sp.Observation, error) {
	fmt.Printf("Loading %s: %s\n", name, src.Path)
	obs := sp.Observation{Name: name, Mapping: src.Mapping()}

	lowerPath := strings.ToLower(src.Path)
	if strings.HasSuffix(lowerPath, ".fits") || strings.HasSuffix(lowerPath, ".fit") || strings.HasSuffix(lowerPath, ".fts") {
		fitsData, err := sp.ReadFitsHDU(src.Path, src.HDU)
		if err != nil {
			return obs, fmt.Errorf("reading FITS %s: %w", src.Path, err)
		}
		meta := fitsData.Metadata
		fmt.Printf("FITS loaded: HDU %d, %dx%d, BITPIX %d\n", fitsData.HDU, fitsData.Width, fitsData.Height, fitsData.Bitpix)
		if object := meta.ObjectName(); object != "" {
			fmt.Printf("  Object:     %s (%s, filter %q)\n", object, meta.TelescopeName(), meta.Filter())
		}
		if t, ok := meta.ObservationTime(); ok {
			exp, _ := meta.ExposureTime()
			fmt.Printf("  Observed:   %s, %.1fs\n", t.Format(time.RFC3339), exp)
		}
		if obs.Mapping == nil {
			wcs, err := meta.WCS()
			if err != nil {
				return obs, fmt.Errorf("WCS of %s: %w", src.Path, err)
			}
			fmt.Printf("  WCS:        %s\n", wcs)
			obs.Mapping = wcs
		}
		obs.Image = fitsData.ToMat()
	} else {
		if obs.Mapping == nil {
			return obs, fmt.Errorf("%s has no FITS WCS; set images.%s.affine in the pair file", src.Path, strings.ToLower(name))
		}
		img, err := loadNonFitsImage(src.Path)
		if err != nil {
			return obs, err
		}
		obs.Image = img
	}

	if src.Debayer {
		lum := sp.DebayerRGGB(obs.Image)
		obs.Image.Close()
		obs.Image = lum
	}

	stats := sp.CalculateStatistics(obs.Image)
	fmt.Printf("  Statistics: %s\n", stats)
	return obs, nil
}

func printSide(side sp.PairSide, mapping sp.CoordinateMapping) {
	fmt.Printf("  %s crop:        %s %v\n", side.Name, side.Status, side.Region)
	if wcs, ok := mapping.(*sp.TanWCS); ok && !side.Region.Empty() {
		fmt.Printf("  %s sky corners: %v\n", side.Name, wcs.RegionCorners(side.Region))
	}
	if side.Product == nil {
		return
	}
	p := side.Product
	b := p.Display.Bounds()
	fmt.Printf("  %s stretch:     [%.4g, %.4g] flat=%t\n", side.Name, p.VMin, p.VMax, p.Flat)
	fmt.Printf("  %s output:      %d x %d, scale %.4f, %s\n", side.Name, b.Dx(), b.Dy(), p.Scale, p.Tensor)
}
