package webmonitor

const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>AI WiFi CAM Live View</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <link rel="stylesheet" href="/assets/dashboard.css">
</head>
<body>
    <div class="app">
        <div class="header">
            <div class="title">AI WiFi CAM</div>
            <div class="connection-status status-offline" id="connection-status">
                <span class="dot"></span><span id="status-value">Disconnected</span>
            </div>
            <button type="button" class="theme-toggle" id="theme-toggle">Theme</button>
        </div>

        <div class="tabs">
            <button type="button" class="tab-button" data-target="live">Live</button>
            <button type="button" class="tab-button" data-target="gallery">Snapshots</button>
            <button type="button" class="tab-button" data-target="settings">Settings</button>
        </div>

        <section class="tab-content" id="live">
            <div class="video-container" id="video-container">
                <img id="video-stream" alt="Live stream" src="/stream">
                <div class="loading-overlay" id="loading-overlay">Connecting to camera...</div>
            </div>
            <div class="controls">
                <button type="button" id="snapshot-btn" disabled>Snapshot</button>
                <button type="button" id="fullscreen-btn" disabled>Fullscreen</button>
            </div>
            <div class="stats">
                <div class="stat"><span class="label">FPS</span><span id="fps-value">0</span></div>
                <div class="stat"><span class="label">Resolution</span><span id="resolution-value">-</span></div>
                <div class="stat"><span class="label">Detections</span><span id="detections-value">0</span></div>
                <div class="stat"><span class="label">Uptime</span><span id="uptime-value">00:00:00</span></div>
            </div>
        </section>

        <section class="tab-content" id="gallery">
            <div class="snapshots-grid" id="snapshots-grid"></div>
        </section>

        <section class="tab-content" id="settings">
            <label>AI model
                <select id="ai-model">
                    <option value="yolov4">YOLOv4</option>
                    <option value="mediapipe_pose">MediaPipe Pose</option>
                    <option value="mediapipe_face">MediaPipe Face</option>
                </select>
            </label>
            <label>Confidence threshold
                <input type="range" id="confidence-threshold" min="0" max="1" step="0.05" value="0.5">
                <span id="confidence-value">0.5</span>
            </label>
            <label><input type="checkbox" id="display-fps" checked> Display FPS</label>
            <button type="button" id="apply-settings">Apply</button>
            <p class="settings-note" id="settings-note"></p>
        </section>
    </div>

    <div class="modal" id="snapshot-modal">
        <div class="modal-content">
            <span class="close-button">&times;</span>
            <img id="modal-image" alt="Snapshot">
            <button type="button" id="download-snapshot">Download</button>
        </div>
    </div>

    <script>
        const $ = (id) => document.getElementById(id);
        const container = $('video-container');
        let lastView = null;
        let prefs = { theme: 'light', activeTab: 'live' };

        function render(view) {
            lastView = view;
            const status = $('connection-status');
            status.classList.remove('status-online', 'status-offline');
            status.classList.add(view.status_class);
            $('status-value').textContent = view.status;
            $('fps-value').textContent = view.fps;
            $('detections-value').textContent = view.detections;
            $('resolution-value').textContent = view.resolution;
            $('uptime-value').textContent = view.uptime;
            $('loading-overlay').style.display = view.loading ? 'flex' : 'none';
            $('snapshot-btn').disabled = !view.snapshot_enabled;
            $('fullscreen-btn').disabled = !view.fullscreen_enabled;
            if (document.activeElement !== $('confidence-threshold')) {
                $('ai-model').value = view.ai_model;
                $('confidence-threshold').value = view.confidence_threshold;
                $('confidence-value').textContent = view.confidence_threshold;
                $('display-fps').checked = view.display_fps;
            }
            applyFullscreen(view.fullscreen);
        }

        // Single entry point for the Fullscreen API. Browsers without it keep
        // the inline layout.
        function applyFullscreen(on) {
            const active = document.fullscreenElement || document.webkitFullscreenElement;
            if (on && !active) {
                const enter = container.requestFullscreen || container.webkitRequestFullscreen;
                if (enter) {
                    const p = enter.call(container);
                    if (p && p.catch) {
                        p.catch(() => {});
                    }
                }
            } else if (!on && active) {
                const exit = document.exitFullscreen || document.webkitExitFullscreen;
                if (exit) {
                    exit.call(document);
                }
            }
        }

        function connectStatus() {
            const source = new EventSource('/api/status/stream');
            source.onmessage = (e) => render(JSON.parse(e.data));
            source.onerror = () => console.log('[Status] stream interrupted, browser will retry');
        }

        async function refreshGallery() {
            const res = await fetch('/api/snapshots');
            const items = await res.json();
            const grid = $('snapshots-grid');
            grid.innerHTML = '';
            for (const item of items) {
                const card = document.createElement('div');
                card.className = 'snapshot-item';
                card.innerHTML = '<img src="' + item.url + '" alt="Snapshot ' + item.ordinal + '">' +
                    '<div class="snapshot-info">Snapshot ' + item.ordinal + ' - ' + item.timestamp + '</div>';
                card.addEventListener('click', () => openModal(item.ordinal));
                grid.appendChild(card);
            }
        }

        async function openModal(ordinal) {
            const res = await fetch('/api/modal/' + ordinal, { method: 'POST' });
            if (!res.ok) {
                return;
            }
            const snap = await res.json();
            $('modal-image').src = snap.image_data_url;
            $('snapshot-modal').style.display = 'block';
        }

        async function closeModal() {
            await fetch('/api/modal', { method: 'DELETE' });
            $('snapshot-modal').style.display = 'none';
        }

        function selectTab(target, save) {
            document.querySelectorAll('.tab-content').forEach((c) => c.classList.toggle('active', c.id === target));
            document.querySelectorAll('.tab-button').forEach((b) => b.classList.toggle('active', b.dataset.target === target));
            if (save) {
                prefs.activeTab = target;
                savePrefs();
            }
            if (target === 'gallery') {
                refreshGallery();
            }
        }

        function applyTheme(theme) {
            document.body.classList.toggle('dark-mode', theme === 'dark');
        }

        async function savePrefs() {
            await fetch('/api/preferences', {
                method: 'PUT',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify(prefs),
            });
        }

        $('snapshot-btn').addEventListener('click', async () => {
            const res = await fetch('/api/snapshots', { method: 'POST' });
            if (res.status === 201) {
                refreshGallery();
            }
        });

        $('fullscreen-btn').addEventListener('click', () => fetch('/api/fullscreen', { method: 'POST' }));
        document.addEventListener('fullscreenchange', () => {
            if (!document.fullscreenElement && lastView && lastView.fullscreen) {
                fetch('/api/fullscreen', { method: 'POST' });
            }
        });

        $('confidence-threshold').addEventListener('input', (e) => {
            $('confidence-value').textContent = e.target.value;
        });

        $('apply-settings').addEventListener('click', async () => {
            const res = await fetch('/api/settings', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({
                    ai_model: $('ai-model').value,
                    confidence_threshold: $('confidence-threshold').value,
                    display_fps: $('display-fps').checked,
                }),
            });
            const result = await res.json();
            $('settings-note').textContent = result.sent ? 'Settings sent' : 'Not sent: ' + (result.reason || 'error');
        });

        document.querySelector('.close-button').addEventListener('click', closeModal);
        $('snapshot-modal').addEventListener('click', (e) => {
            if (e.target === $('snapshot-modal')) {
                closeModal();
            }
        });
        $('download-snapshot').addEventListener('click', () => {
            window.location.href = '/api/modal/download';
        });

        document.querySelectorAll('.tab-button').forEach((b) => {
            b.addEventListener('click', () => selectTab(b.dataset.target, true));
        });

        $('theme-toggle').addEventListener('click', () => {
            prefs.theme = prefs.theme === 'dark' ? 'light' : 'dark';
            applyTheme(prefs.theme);
            savePrefs();
        });

        window.addEventListener('load', async () => {
            try {
                const res = await fetch('/api/preferences');
                prefs = await res.json();
            } catch (err) {
                console.error('[Prefs] load failed:', err);
            }
            applyTheme(prefs.theme);
            selectTab(prefs.activeTab, false);
            connectStatus();
        });
    </script>
</body>
</html>
`
