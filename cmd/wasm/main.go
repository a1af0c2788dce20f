//go:build js && wasm

package main

import (
	"fmt"
	"syscall/js"

	sp "skypair/pkg/skypair"
)

func main() {
	js.Global().Set("prepareProof", js.FuncOf(prepareProof))
	select {} // block forever
}

func prepareProof(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return errorResult("usage: prepareProof(fitsA, fitsB, corners, options)")
	}

	polygon, err := sp.ParseSkyPolygon(args[2].String())
	if err != nil {
		return errorResult("corners: " + err.Error())
	}

	cp := sp.NewCropParams()
	np := sp.NewNormalizeParams()
	debayer, caption := false, false
	if len(args) >= 4 && args[3].Type() == js.TypeObject {
		opts := args[3]
		if v := opts.Get("margin"); v.Type() == js.TypeNumber {
			cp.Margin = v.Int()
		}
		if v := opts.Get("minSize"); v.Type() == js.TypeNumber {
			cp.MinSize = v.Int()
		}
		if v := opts.Get("maxDim"); v.Type() == js.TypeNumber {
			np.MaxDim = v.Int()
		}
		if v := opts.Get("debayer"); v.Type() == js.TypeBoolean {
			debayer = v.Bool()
		}
		if v := opts.Get("caption"); v.Type() == js.TypeBoolean {
			caption = v.Bool()
		}
	}

	obsA, err := observationFromJS("A", args[0], debayer)
	if err != nil {
		return errorResult(err.Error())
	}
	defer obsA.Image.Close()
	obsB, err := observationFromJS("B", args[1], debayer)
	if err != nil {
		return errorResult(err.Error())
	}
	defer obsB.Image.Close()

	result, err := sp.PreparePair(obsA, obsB, polygon, cp, np)
	if err != nil {
		return errorResult("prepare error: " + err.Error())
	}
	jsResult := map[string]interface{}{
		"statusA": result.A.Status.String(),
		"statusB": result.B.Status.String(),
	}
	if !result.Available() {
		jsResult["error"] = "sky region not usable in both images"
		return js.ValueOf(jsResult)
	}

	dispA, dispB := sp.ReconcileSizes(result.A.Product.Display, result.B.Product.Display)
	proof, err := sp.ComposeProof(dispA, dispB)
	if err != nil {
		return errorResult("compose error: " + err.Error())
	}
	if caption {
		proof = sp.CaptionProof(proof, "A", "B")
	}
	pngBytes, err := sp.EncodeProofPNG(proof)
	if err != nil {
		return errorResult("encode error: " + err.Error())
	}

	// Create Uint8Array and copy bytes
	uint8Array := js.Global().Get("Uint8Array").New(len(pngBytes))
	js.CopyBytesToJS(uint8Array, pngBytes)

	jsResult["png"] = uint8Array
	jsResult["scaleA"] = result.A.Product.Scale
	jsResult["scaleB"] = result.B.Product.Scale
	jsResult["width"] = dispA.Bounds().Dx()
	jsResult["height"] = dispA.Bounds().Dy()
	return js.ValueOf(jsResult)
}

func observationFromJS(name string, jsBytes js.Value, debayer bool) (sp.Observation, error) {
	obs := sp.Observation{Name: name}

	length := jsBytes.Get("length").Int()
	fileBytes := make([]byte, length)
	js.CopyBytesToGo(fileBytes, jsBytes)

	fitsData, err := sp.ReadFitsFromBytes(fileBytes)
	if err != nil {
		return obs, fmt.Errorf("%s: FITS parse error: %w", name, err)
	}
	wcs, err := fitsData.Metadata.WCS()
	if err != nil {
		return obs, fmt.Errorf("%s: %w", name, err)
	}
	obs.Mapping = wcs
	obs.Image = fitsData.ToMat()
	if debayer {
		lum := sp.DebayerRGGB(obs.Image)
		obs.Image.Close()
		obs.Image = lum
	}
	return obs, nil
}

func errorResult(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{
		"error": msg,
	})
}
