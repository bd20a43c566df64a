// Package media models the access units consumed by the pacing engine and
// provides the sources that produce them.
//
// An AccessUnit is one encoded audio or video frame together with its
// presentation timestamp and duration, both expressed in ticks of a
// rational time base. Sources hand out access units one at a time and
// return io.EOF once exhausted:
//
//	demux, err := media.OpenFiles("clip.ivf", "clip.ogg", media.DemuxOptions{})
//	if err != nil {
//	    return err
//	}
//	defer demux.Close()
//	for {
//	    unit, err := demux.Video.Next(ctx)
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    ...
//	}
//
// File sources are built on the pion/webrtc media readers: IVF for VP8 and
// AV1, Ogg for Opus and raw Annex-B for H.264. A Demuxer owns the files it
// opened and releases them on Close.
package media
